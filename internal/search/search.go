package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/contentstore/internal/ai"
	"github.com/seanblong/contentstore/internal/similarity"
	"github.com/seanblong/contentstore/pkg/models"
)

// Finder answers nearest-neighbour queries over stored chunks.
type Finder interface {
	FindSimilar(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error)
}

// Request is a similarity query. Nil Limit and Threshold take the defaults.
type Request struct {
	Text      string   `json:"text"`
	Limit     *int     `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type Service struct {
	Embedder ai.Embedder
	Store    Finder
}

// NewService creates a new search service with the provided embedder and store
func NewService(e ai.Embedder, s Finder) *Service {
	return &Service{
		Embedder: e,
		Store:    s,
	}
}

// Query embeds the request text and returns the stored chunks closest to it.
// Embedding failures are returned, never replaced by an empty vector.
func (s *Service) Query(ctx context.Context, req Request) ([]models.SearchResult, error) {
	q := strings.TrimSpace(req.Text)
	if q == "" {
		return nil, fmt.Errorf("%w: query text is empty", models.ErrInvalidInput)
	}
	limit := similarity.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", models.ErrInvalidInput)
	}
	threshold := similarity.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	emb, err := s.Embedder.Embed(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("query embedding failed")
		return nil, err
	}

	res, err := s.Store.FindSimilar(ctx, emb.Vector, limit, threshold)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("limit", limit).Float64("threshold", threshold).Int("results", len(res)).Msg("similarity query")
	return res, nil
}
