// Package postgres stores sources, contents and chunks in PostgreSQL with
// pgvector embeddings. Similarity is computed exactly by a sequential scan;
// no approximate index is created.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/contentstore/internal/similarity"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/pkg/models"
)

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

var _ store.Store = (*Store)(nil)

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", models.ErrPersistence, dim)
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sources (
  id            UUID PRIMARY KEY,
  domain        TEXT NOT NULL UNIQUE,
  is_active     BOOLEAN NOT NULL DEFAULT TRUE,
  last_crawled  TIMESTAMP WITH TIME ZONE,
  created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contents (
  id            UUID PRIMARY KEY,
  source_id     UUID NOT NULL REFERENCES sources (id),
  url           TEXT NOT NULL,
  url_hash      TEXT NOT NULL UNIQUE,
  raw_content   TEXT,
  status        TEXT NOT NULL DEFAULT 'pending',
  created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS contents_source_idx
  ON contents (source_id);

CREATE TABLE IF NOT EXISTS chunks (
  id              UUID PRIMARY KEY,
  content_id      UUID NOT NULL REFERENCES contents (id) ON DELETE CASCADE,
  sequence        INT NOT NULL,
  text            TEXT NOT NULL,
  token_count     INT,
  char_count      INT,
  embedding       vector(%d),
  embedding_model TEXT,
  created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
  UNIQUE (content_id, sequence)
);
`
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim)); err != nil {
		return fmt.Errorf("%w: migrate: %w", models.ErrPersistence, err)
	}
	s.dim = dim
	return nil
}

const sourceColumns = `id, domain, is_active, last_crawled, created_at`

func scanSource(row pgx.Row) (models.Source, error) {
	var src models.Source
	err := row.Scan(&src.ID, &src.Domain, &src.IsActive, &src.LastCrawled, &src.CreatedAt)
	return src, err
}

// UpsertSource inserts the domain or reactivates it.
func (s *Store) UpsertSource(ctx context.Context, domain string) (models.Source, error) {
	const q = `
		INSERT INTO sources (id, domain, is_active, last_crawled)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (domain) DO UPDATE SET
			is_active    = TRUE,
			last_crawled = EXCLUDED.last_crawled
		RETURNING ` + sourceColumns

	src, err := scanSource(s.pool.QueryRow(ctx, q, uuid.New(), domain))
	if err != nil {
		return models.Source{}, fmt.Errorf("%w: upsert source %q: %w", models.ErrPersistence, domain, err)
	}
	return src, nil
}

func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (models.Source, bool, error) {
	src, err := scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Source{}, false, nil
		}
		return models.Source{}, false, fmt.Errorf("%w: get source: %w", models.ErrPersistence, err)
	}
	return src, true, nil
}

func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources WHERE is_active ORDER BY domain`)
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
	src, err := scanSource(s.pool.QueryRow(ctx,
		`UPDATE sources SET is_active = $2 WHERE id = $1 RETURNING `+sourceColumns, id, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Source{}, false, nil
		}
		return models.Source{}, false, fmt.Errorf("%w: update source: %w", models.ErrPersistence, err)
	}
	return src, true, nil
}

const contentColumns = `id, source_id, url, url_hash, raw_content, status, created_at`

func scanContent(row pgx.Row) (models.Content, error) {
	var c models.Content
	err := row.Scan(&c.ID, &c.SourceID, &c.URL, &c.URLHash, &c.RawContent, &c.Status, &c.CreatedAt)
	return c, err
}

func (s *Store) UpsertContent(ctx context.Context, sourceID uuid.UUID, url string, raw *string) (models.Content, error) {
	const q = `
		INSERT INTO contents (id, source_id, url, url_hash, raw_content, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url_hash) DO UPDATE SET
			source_id   = EXCLUDED.source_id,
			raw_content = COALESCE(EXCLUDED.raw_content, contents.raw_content),
			status      = EXCLUDED.status
		RETURNING ` + contentColumns

	c, err := scanContent(s.pool.QueryRow(ctx, q,
		uuid.New(), sourceID, url, models.HashURL(url), raw, models.StatusPending))
	if err != nil {
		return models.Content{}, fmt.Errorf("%w: upsert content %q: %w", models.ErrPersistence, url, err)
	}
	return c, nil
}

func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (models.Content, bool, error) {
	c, err := scanContent(s.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Content{}, false, nil
		}
		return models.Content{}, false, fmt.Errorf("%w: get content: %w", models.ErrPersistence, err)
	}
	return c, true, nil
}

func (s *Store) ListContentsBySource(ctx context.Context, sourceID uuid.UUID) ([]models.Content, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE source_id = $1 ORDER BY created_at, id`, sourceID)
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
	const q = `
		UPDATE contents SET
			status      = COALESCE($2, status),
			raw_content = COALESCE($3, raw_content)
		WHERE id = $1
		RETURNING ` + contentColumns

	c, err := scanContent(s.pool.QueryRow(ctx, q, id, patch.Status, patch.RawContent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Content{}, false, nil
		}
		return models.Content{}, false, fmt.Errorf("%w: update content: %w", models.ErrPersistence, err)
	}
	return c, true, nil
}

const chunkColumns = `id, content_id, sequence, text, token_count, char_count, embedding::text, COALESCE(embedding_model, ''), created_at`

func scanChunk(row pgx.Row, extra ...any) (models.Chunk, error) {
	var c models.Chunk
	var emb *pgvector.Vector
	dst := append([]any{
		&c.ID, &c.ContentID, &c.Sequence, &c.Text, &c.TokenCount, &c.CharCount, &emb, &c.EmbeddingModel, &c.CreatedAt,
	}, extra...)
	if err := row.Scan(dst...); err != nil {
		return models.Chunk{}, err
	}
	if emb != nil {
		c.Embedding = emb.Slice()
	}
	return c, nil
}

func vectorArg(v []float32) any {
	if v == nil {
		return (*pgvector.Vector)(nil)
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func insertChunks(ctx context.Context, tx pgx.Tx, cs []models.Chunk) error {
	const q = `
		INSERT INTO chunks (id, content_id, sequence, text, token_count, char_count, embedding, embedding_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`

	for _, c := range cs {
		if _, err := tx.Exec(ctx, q,
			c.ID, c.ContentID, c.Sequence, c.Text, c.TokenCount, c.CharCount,
			vectorArg(c.Embedding), c.EmbeddingModel, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("%w: insert chunk %d: %w", models.ErrPersistence, c.Sequence, err)
		}
	}
	return nil
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

// writeChunks inserts cs in one transaction, first deleting the chunks of
// replace when it is set.
func (s *Store) writeChunks(ctx context.Context, replace uuid.UUID, cs []models.Chunk) ([]models.Chunk, error) {
	cs = append([]models.Chunk(nil), cs...)
	if err := store.PrepareChunks(cs, s.dim); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", models.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if replace != uuid.Nil {
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE content_id = $1`, replace); err != nil {
			return nil, fmt.Errorf("%w: delete chunks: %w", models.ErrPersistence, err)
		}
	}
	if err := insertChunks(ctx, tx, cs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", models.ErrPersistence, err)
	}
	return cs, nil
}

func (s *Store) ChunksByContent(ctx context.Context, contentID uuid.UUID) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE content_id = $1 ORDER BY sequence`, contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %w", models.ErrPersistence, err)
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE content_id = $1`, contentID); err != nil {
		return fmt.Errorf("%w: delete chunks: %w", models.ErrPersistence, err)
	}
	return nil
}

// FindSimilar ranks chunks by 1 - cosine distance. A zero-norm query makes
// pgvector return NaN, which Postgres orders above every number, so it is
// rejected before reaching the database.
func (s *Store) FindSimilar(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error) {
	out := []models.SearchResult{}
	if limit <= 0 || len(vec) == 0 || similarity.Norm(vec) == 0 {
		return out, nil
	}
	if s.dim > 0 && len(vec) != s.dim {
		return out, nil
	}

	const q = `
		SELECT ` + chunkColumns + `, score
		FROM (
			SELECT *, 1 - (embedding <=> $1) AS score
			FROM chunks
			WHERE embedding IS NOT NULL AND vector_norm(embedding) > 0
		) ranked
		WHERE score >= $2
		ORDER BY score DESC, id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, q, vectorArg(vec), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %w", models.ErrPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		var score float64
		c, err := scanChunk(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("%w: scan result: %w", models.ErrPersistence, err)
		}
		out = append(out, models.SearchResult{Chunk: c, Score: score})
	}
	return out, rows.Err()
}
