// Package memory is a process-local store backend for tests and
// single-shot runs. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/internal/similarity"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/pkg/models"
)

type Store struct {
	mu       sync.RWMutex
	dim      int
	sources  map[uuid.UUID]models.Source
	byDomain map[string]uuid.UUID
	contents map[uuid.UUID]models.Content
	byHash   map[string]uuid.UUID
	chunks   map[uuid.UUID][]models.Chunk // by content, ordered by sequence
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sources:  make(map[uuid.UUID]models.Source),
		byDomain: make(map[string]uuid.UUID),
		contents: make(map[uuid.UUID]models.Content),
		byHash:   make(map[string]uuid.UUID),
		chunks:   make(map[uuid.UUID][]models.Chunk),
	}
}

func (s *Store) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", models.ErrPersistence, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dim = dim
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

func (s *Store) UpsertSource(ctx context.Context, domain string) (models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.byDomain[domain]; ok {
		src := s.sources[id]
		src.IsActive = true
		src.LastCrawled = &now
		s.sources[id] = src
		return src, nil
	}
	src := models.Source{ID: uuid.New(), Domain: domain, IsActive: true, LastCrawled: &now, CreatedAt: now}
	s.sources[src.ID] = src
	s.byDomain[domain] = src.ID
	return src, nil
}

func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (models.Source, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	return src, ok, nil
}

func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Source{}
	for _, src := range s.sources {
		if src.IsActive {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (s *Store) SetSourceActive(ctx context.Context, id uuid.UUID, active bool) (models.Source, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return models.Source{}, false, nil
	}
	src.IsActive = active
	s.sources[id] = src
	return src, true, nil
}

func (s *Store) UpsertContent(ctx context.Context, sourceID uuid.UUID, url string, raw *string) (models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[sourceID]; !ok {
		return models.Content{}, fmt.Errorf("%w: upsert content %q: unknown source %s", models.ErrPersistence, url, sourceID)
	}
	hash := models.HashURL(url)
	if id, ok := s.byHash[hash]; ok {
		c := s.contents[id]
		c.SourceID = sourceID
		c.Status = models.StatusPending
		if raw != nil {
			c.RawContent = copyString(raw)
		}
		s.contents[id] = c
		return c, nil
	}
	c := models.Content{
		ID:         uuid.New(),
		SourceID:   sourceID,
		URL:        url,
		URLHash:    hash,
		RawContent: copyString(raw),
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	s.contents[c.ID] = c
	s.byHash[hash] = c.ID
	return c, nil
}

func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (models.Content, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[id]
	return c, ok, nil
}

func (s *Store) ListContentsBySource(ctx context.Context, sourceID uuid.UUID) ([]models.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Content{}
	for _, c := range s.contents {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, patch store.ContentPatch) (models.Content, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return models.Content{}, false, nil
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.RawContent != nil {
		c.RawContent = copyString(patch.RawContent)
	}
	s.contents[id] = c
	return c, true, nil
}

func (s *Store) CreateChunk(ctx context.Context, c models.Chunk) (models.Chunk, error) {
	out, err := s.BatchCreateChunks(ctx, []models.Chunk{c})
	if err != nil {
		return models.Chunk{}, err
	}
	return out[0], nil
}

func (s *Store) BatchCreateChunks(ctx context.Context, cs []models.Chunk) ([]models.Chunk, error) {
	return s.writeChunks(uuid.Nil, cs)
}

func (s *Store) ReplaceChunks(ctx context.Context, contentID uuid.UUID, cs []models.Chunk) ([]models.Chunk, error) {
	if contentID == uuid.Nil {
		return nil, fmt.Errorf("%w: replace chunks: content id is required", models.ErrPersistence)
	}
	return s.writeChunks(contentID, store.WithContent(cs, contentID))
}

// writeChunks validates the whole batch against a staged copy of the
// affected chunk lists and swaps them in only when every chunk fits.
func (s *Store) writeChunks(replace uuid.UUID, cs []models.Chunk) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs = append([]models.Chunk(nil), cs...)
	if err := store.PrepareChunks(cs, s.dim); err != nil {
		return nil, err
	}

	staged := make(map[uuid.UUID][]models.Chunk)
	if replace != uuid.Nil {
		staged[replace] = nil
	}
	for i := range cs {
		c := &cs[i]
		if _, ok := s.contents[c.ContentID]; !ok {
			return nil, fmt.Errorf("%w: insert chunk %d: unknown content %s", models.ErrPersistence, c.Sequence, c.ContentID)
		}
		list, ok := staged[c.ContentID]
		if !ok {
			list = append([]models.Chunk(nil), s.chunks[c.ContentID]...)
		}
		for _, existing := range list {
			if existing.Sequence == c.Sequence {
				return nil, fmt.Errorf("%w: insert chunk %d: duplicate sequence", models.ErrPersistence, c.Sequence)
			}
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		if len(c.Embedding) == 0 {
			c.Embedding = nil
		}
		staged[c.ContentID] = append(list, *c)
	}

	for id, list := range staged {
		sort.Slice(list, func(i, j int) bool { return list[i].Sequence < list[j].Sequence })
		s.chunks[id] = list
	}
	return cs, nil
}

func (s *Store) ChunksByContent(ctx context.Context, contentID uuid.UUID) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Chunk{}, s.chunks[contentID]...), nil
}

func (s *Store) DeleteChunksByContent(ctx context.Context, contentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, contentID)
	return nil
}

func (s *Store) FindSimilar(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error) {
	s.mu.RLock()
	var all []models.Chunk
	for _, list := range s.chunks {
		all = append(all, list...)
	}
	s.mu.RUnlock()
	return similarity.TopK(vec, all, limit, threshold), nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
