package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/pkg/models"
)

// PrepareChunks assigns ids and timestamps to new chunks and rejects
// batches a backend could not store: missing content, sequences below 1,
// duplicate sequences within one content, or embeddings whose length is
// not dim. dim <= 0 skips the dimension check.
func PrepareChunks(cs []models.Chunk, dim int) error {
	now := time.Now().UTC()
	type key struct {
		content uuid.UUID
		seq     int
	}
	seen := make(map[key]struct{}, len(cs))

	for i := range cs {
		c := &cs[i]
		if c.ContentID == uuid.Nil {
			return fmt.Errorf("%w: chunk %d: content id is required", models.ErrPersistence, i)
		}
		if c.Sequence < 1 {
			return fmt.Errorf("%w: chunk %d: sequence %d out of range", models.ErrPersistence, i, c.Sequence)
		}
		k := key{c.ContentID, c.Sequence}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: chunk %d: duplicate sequence %d", models.ErrPersistence, i, c.Sequence)
		}
		seen[k] = struct{}{}
		if c.Embedding != nil && dim > 0 && len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %d: embedding has %d dimensions, want %d", models.ErrPersistence, i, len(c.Embedding), dim)
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}
	return nil
}

// WithContent returns a copy of cs with every chunk assigned to contentID.
func WithContent(cs []models.Chunk, contentID uuid.UUID) []models.Chunk {
	out := make([]models.Chunk, len(cs))
	for i, c := range cs {
		c.ContentID = contentID
		out[i] = c
	}
	return out
}
