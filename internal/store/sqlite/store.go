// Package sqlite is an embedded store backend. Embeddings are kept as
// little-endian float32 blobs and ranked in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/internal/similarity"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/pkg/models"
	_ "modernc.org/sqlite" // SQLite driver
)

type Store struct {
	db   *sql.DB
	path string
	dim  int
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database file at path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// single writer; also keeps transactions on one connection
	db.SetMaxOpenConns(1)

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id           TEXT PRIMARY KEY,
	domain       TEXT NOT NULL UNIQUE,
	is_active    INTEGER NOT NULL DEFAULT 1,
	last_crawled DATETIME,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contents (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL REFERENCES sources(id),
	url         TEXT NOT NULL,
	url_hash    TEXT NOT NULL UNIQUE,
	raw_content TEXT,
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contents_source ON contents(source_id);

CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	content_id      TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
	sequence        INTEGER NOT NULL,
	text            TEXT NOT NULL,
	token_count     INTEGER,
	char_count      INTEGER,
	embedding       BLOB,
	embedding_model TEXT,
	created_at      DATETIME NOT NULL,
	UNIQUE (content_id, sequence)
);
`

// Migrate creates the schema. SQLite has no vector type, so dim is only
// enforced on write.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", models.ErrPersistence, dim)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %w", models.ErrPersistence, err)
	}
	s.dim = dim
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const sourceColumns = `id, domain, is_active, last_crawled, created_at`

func scanSource(row scanner) (models.Source, error) {
	var src models.Source
	var lastCrawled sql.NullTime
	if err := row.Scan(&src.ID, &src.Domain, &src.IsActive, &lastCrawled, &src.CreatedAt); err != nil {
		return models.Source{}, err
	}
	if lastCrawled.Valid {
		t := lastCrawled.Time
		src.LastCrawled = &t
	}
	return src, nil
}

func (s *Store) UpsertSource(ctx context.Context, domain string) (models.Source, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, domain, is_active, last_crawled, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			is_active = 1,
			last_crawled = excluded.last_crawled
	`, uuid.New(), domain, now, now)
	if err != nil {
		return models.Source{}, fmt.Errorf("%w: upsert source %q: %w", models.ErrPersistence, domain, err)
	}

	src, err := scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE domain = ?`, domain))
	if err != nil {
		return models.Source{}, fmt.Errorf("%w: read source %q: %w", models.ErrPersistence, domain, err)
	}
	return src, nil
}

func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (models.Source, bool, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Source{}, false, nil
		}
		return models.Source{}, false, fmt.Errorf("%w: get source: %w", models.ErrPersistence, err)
	}
	return src, true, nil
}

func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE is_active = 1 ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("%w: list sources: %w", models.ErrPersistence, err)
	}
	defer rows.Close()

	out := []models.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan source: %w", models.ErrPersistence, err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) SetSourceActive(ctx context.Context, id uuid.UUID, active bool) (models.Source, bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return models.Source{}, false, fmt.Errorf("%w: update source: %w", models.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Source{}, false, nil
	}
	return s.GetSource(ctx, id)
}

const contentColumns = `id, source_id, url, url_hash, raw_content, status, created_at`

func scanContent(row scanner) (models.Content, error) {
	var c models.Content
	var raw sql.NullString
	if err := row.Scan(&c.ID, &c.SourceID, &c.URL, &c.URLHash, &raw, &c.Status, &c.CreatedAt); err != nil {
		return models.Content{}, err
	}
	if raw.Valid {
		c.RawContent = &raw.String
	}
	return c, nil
}

func (s *Store) UpsertContent(ctx context.Context, sourceID uuid.UUID, url string, raw *string) (models.Content, error) {
	hash := models.HashURL(url)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (id, source_id, url, url_hash, raw_content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
			source_id = excluded.source_id,
			raw_content = COALESCE(excluded.raw_content, contents.raw_content),
			status = excluded.status
	`, uuid.New(), sourceID, url, hash, nullString(raw), models.StatusPending, time.Now().UTC())
	if err != nil {
		return models.Content{}, fmt.Errorf("%w: upsert content %q: %w", models.ErrPersistence, url, err)
	}

	c, err := scanContent(s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE url_hash = ?`, hash))
	if err != nil {
		return models.Content{}, fmt.Errorf("%w: read content %q: %w", models.ErrPersistence, url, err)
	}
	return c, nil
}

func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (models.Content, bool, error) {
	c, err := scanContent(s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Content{}, false, nil
		}
		return models.Content{}, false, fmt.Errorf("%w: get content: %w", models.ErrPersistence, err)
	}
	return c, true, nil
}

func (s *Store) ListContentsBySource(ctx context.Context, sourceID uuid.UUID) ([]models.Content, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE source_id = ? ORDER BY created_at, id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list contents: %w", models.ErrPersistence, err)
	}
	defer rows.Close()

	out := []models.Content{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan content: %w", models.ErrPersistence, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, patch store.ContentPatch) (models.Content, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contents SET
			status = COALESCE(?, status),
			raw_content = COALESCE(?, raw_content)
		WHERE id = ?
	`, nullString(patch.Status), nullString(patch.RawContent), id)
	if err != nil {
		return models.Content{}, false, fmt.Errorf("%w: update content: %w", models.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Content{}, false, nil
	}
	return s.GetContent(ctx, id)
}

const chunkColumns = `id, content_id, sequence, text, token_count, char_count, embedding, COALESCE(embedding_model, ''), created_at`

func scanChunk(row scanner) (models.Chunk, error) {
	var c models.Chunk
	var tokens, chars sql.NullInt64
	var blob []byte
	if err := row.Scan(&c.ID, &c.ContentID, &c.Sequence, &c.Text, &tokens, &chars, &blob, &c.EmbeddingModel, &c.CreatedAt); err != nil {
		return models.Chunk{}, err
	}
	c.TokenCount = nullInt(tokens)
	c.CharCount = nullInt(chars)
	c.Embedding = bytesToFloat32Slice(blob)
	return c, nil
}

func (s *Store) CreateChunk(ctx context.Context, c models.Chunk) (models.Chunk, error) {
	out, err := s.BatchCreateChunks(ctx, []models.Chunk{c})
	if err != nil {
		return models.Chunk{}, err
	}
	return out[0], nil
}

func (s *Store) BatchCreateChunks(ctx context.Context, cs []models.Chunk) ([]models.Chunk, error) {
	return s.writeChunks(ctx, uuid.Nil, cs)
}

func (s *Store) ReplaceChunks(ctx context.Context, contentID uuid.UUID, cs []models.Chunk) ([]models.Chunk, error) {
	if contentID == uuid.Nil {
		return nil, fmt.Errorf("%w: replace chunks: content id is required", models.ErrPersistence)
	}
	return s.writeChunks(ctx, contentID, store.WithContent(cs, contentID))
}

func (s *Store) writeChunks(ctx context.Context, replace uuid.UUID, cs []models.Chunk) ([]models.Chunk, error) {
	cs = append([]models.Chunk(nil), cs...)
	if err := store.PrepareChunks(cs, s.dim); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", models.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace != uuid.Nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE content_id = ?`, replace); err != nil {
			return nil, fmt.Errorf("%w: delete chunks: %w", models.ErrPersistence, err)
		}
	}
	for _, c := range cs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, content_id, sequence, text, token_count, char_count, embedding, embedding_model, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		`, c.ID, c.ContentID, c.Sequence, c.Text, nullIntArg(c.TokenCount), nullIntArg(c.CharCount),
			float32SliceToBytes(c.Embedding), c.EmbeddingModel, c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: insert chunk %d: %w", models.ErrPersistence, c.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", models.ErrPersistence, err)
	}
	return cs, nil
}

func (s *Store) ChunksByContent(ctx context.Context, contentID uuid.UUID) ([]models.Chunk, error) {
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE content_id = ? ORDER BY sequence`, contentID)
}

func (s *Store) queryChunks(ctx context.Context, q string, args ...any) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query chunks: %w", models.ErrPersistence, err)
	}
	defer rows.Close()

	out := []models.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %w", models.ErrPersistence, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteChunksByContent(ctx context.Context, contentID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE content_id = ?`, contentID); err != nil {
		return fmt.Errorf("%w: delete chunks: %w", models.ErrPersistence, err)
	}
	return nil
}

// FindSimilar scans every embedded chunk and ranks in process.
func (s *Store) FindSimilar(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error) {
	chunks, err := s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	return similarity.TopK(vec, chunks, limit, threshold), nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIntArg(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
