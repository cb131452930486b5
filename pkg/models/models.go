package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Content processing states. The set is open; stores accept any string.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Source is the origin domain of ingested content.
type Source struct {
	ID          uuid.UUID  `json:"id"`
	Domain      string     `json:"domain"`
	IsActive    bool       `json:"is_active"`
	LastCrawled *time.Time `json:"last_crawled"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Content is one fetched document, unique by URLHash.
type Content struct {
	ID         uuid.UUID `json:"id"`
	SourceID   uuid.UUID `json:"source_id"`
	URL        string    `json:"url"`
	URLHash    string    `json:"url_hash"`
	RawContent *string   `json:"raw_content"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a contiguous slice of a Content's text.
type Chunk struct {
	ID             uuid.UUID `json:"id"`
	ContentID      uuid.UUID `json:"content_id"`
	Sequence       int       `json:"sequence"`
	Text           string    `json:"text"`
	TokenCount     *int      `json:"token_count"`
	CharCount      *int      `json:"char_count"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"similarity"`
}

// ChunkRef records the provenance of one chunk created by an ingestion run.
type ChunkRef struct {
	SourceID  uuid.UUID `json:"source_id"`
	ContentID uuid.UUID `json:"content_id"`
	ChunkID   uuid.UUID `json:"chunk_id"`
}

// HashURL returns the hex sha256 of url, the dedup key for Content.
func HashURL(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}
