// Package store defines persistence for sources, contents and chunks.
// Backends live in subpackages: postgres (pgvector), sqlite and memory.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/pkg/models"
)

// SourceStore persists Sources keyed by domain.
type SourceStore interface {
	// UpsertSource creates the source for domain or reactivates the existing
	// one, stamping last_crawled. Concurrent upserts are last-writer-wins.
	UpsertSource(ctx context.Context, domain string) (models.Source, error)
	GetSource(ctx context.Context, id uuid.UUID) (models.Source, bool, error)
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	SetSourceActive(ctx context.Context, id uuid.UUID, active bool) (models.Source, bool, error)
}

// ContentPatch holds optional field updates for a Content.
type ContentPatch struct {
	Status     *string `json:"status,omitempty"`
	RawContent *string `json:"raw_content,omitempty"`
}

// ContentStore persists Contents keyed by the sha256 of their URL.
type ContentStore interface {
	// UpsertContent creates the content for url or returns the existing one,
	// re-associating it with sourceID and resetting its status to pending.
	// A nil raw keeps any stored raw content.
	UpsertContent(ctx context.Context, sourceID uuid.UUID, url string, raw *string) (models.Content, error)
	GetContent(ctx context.Context, id uuid.UUID) (models.Content, bool, error)
	ListContentsBySource(ctx context.Context, sourceID uuid.UUID) ([]models.Content, error)
	UpdateContent(ctx context.Context, id uuid.UUID, patch ContentPatch) (models.Content, bool, error)
}

// ChunkStore persists Chunks and answers nearest-neighbour queries.
type ChunkStore interface {
	CreateChunk(ctx context.Context, c models.Chunk) (models.Chunk, error)
	// BatchCreateChunks stores all chunks or none of them.
	BatchCreateChunks(ctx context.Context, cs []models.Chunk) ([]models.Chunk, error)
	// ReplaceChunks atomically swaps the chunk set of contentID for cs.
	ReplaceChunks(ctx context.Context, contentID uuid.UUID, cs []models.Chunk) ([]models.Chunk, error)
	// ChunksByContent returns the chunks of a content ordered by sequence.
	ChunksByContent(ctx context.Context, contentID uuid.UUID) ([]models.Chunk, error)
	DeleteChunksByContent(ctx context.Context, contentID uuid.UUID) error
	// FindSimilar returns up to limit chunks whose cosine similarity to vec
	// is at least threshold, best first, ties broken by chunk id. Chunks
	// without an embedding and zero-norm vectors never match.
	FindSimilar(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error)
}

// Store is a complete backend.
type Store interface {
	SourceStore
	ContentStore
	ChunkStore
	// Migrate prepares the schema for embeddings of dimension dim.
	Migrate(ctx context.Context, dim int) error
	Ping(ctx context.Context) error
	Close() error
}
