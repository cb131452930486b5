package ai

import (
	"context"
	"fmt"

	"github.com/seanblong/contentstore/pkg/models"
	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles provider calls with a token bucket.
// EmbedMany forwards texts in batches of batchSize, one token per batch, so
// with the provider's batch size every provider request costs one token.
type RateLimitedEmbedder struct {
	inner     Embedder
	limiter   *rate.Limiter
	batchSize int
}

// NewRateLimitedEmbedder allows rps requests per second with the given burst.
func NewRateLimitedEmbedder(inner Embedder, rps float64, burst, batchSize int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &RateLimitedEmbedder{
		inner:     inner,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		batchSize: batchSize,
	}
}

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %w", models.ErrEmbeddingUnavailable, err)
	}
	return nil
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	if err := r.wait(ctx); err != nil {
		return Embedding{}, err
	}
	return r.inner.Embed(ctx, text)
}

func (r *RateLimitedEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, 0, len(texts))
	for _, batch := range batches(texts, r.batchSize) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		embs, err := r.inner.EmbedMany(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, embs...)
	}
	return out, nil
}

func (r *RateLimitedEmbedder) Dim() int      { return r.inner.Dim() }
func (r *RateLimitedEmbedder) Model() string { return r.inner.Model() }
