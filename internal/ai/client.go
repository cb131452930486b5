package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/seanblong/contentstore/pkg/models"
)

// Embedding is a vector together with the model that produced it.
type Embedding struct {
	Vector []float32
	Model  string
}

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
	// EmbedMany returns one embedding per input, in input order.
	EmbedMany(ctx context.Context, texts []string) ([]Embedding, error)
	Dim() int
	Model() string
}

// Provider is enumeration of supported embedding providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

const defaultBatchSize = 64

// ClientConfig holds configuration for embedding clients
type ClientConfig struct {
	APIKey     string
	EmbedModel string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string
	// BatchSize caps the number of inputs sent in a single provider request.
	BatchSize int
}

// NewClient creates an embedder for the configured provider.
func NewClient(ctx context.Context, config *ClientConfig) (Embedder, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI, "google":
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient produces deterministic pseudo-random vectors derived from the
// text. Equal texts map to equal vectors; no vector has a zero norm.
type StubClient struct {
	dim int
}

const stubModel = "stub"

func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 8
	}
	return &StubClient{dim: dim}
}

func (s *StubClient) Embed(ctx context.Context, text string) (Embedding, error) {
	if err := ctx.Err(); err != nil {
		return Embedding{}, fmt.Errorf("%w: stub: %w", models.ErrEmbeddingUnavailable, err)
	}
	v := make([]float32, s.dim)
	var block [32]byte
	for i := range v {
		if i%32 == 0 {
			var ctr [8]byte
			binary.LittleEndian.PutUint64(ctr[:], uint64(i/32))
			block = sha256.Sum256(append(ctr[:], text...))
		}
		// b-127.5 is never zero
		v[i] = (float32(block[i%32]) - 127.5) / 128
	}
	return Embedding{Vector: v, Model: stubModel}, nil
}

func (s *StubClient) EmbedMany(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, 0, len(texts))
	for _, t := range texts {
		e, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *StubClient) Dim() int      { return s.dim }
func (s *StubClient) Model() string { return stubModel }

// checkDim rejects vectors whose length differs from the configured dimension.
func checkDim(provider string, vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: %s: empty embedding", models.ErrEmbeddingUnavailable, provider)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: %s: got %d dimensions, want %d", models.ErrEmbeddingUnavailable, provider, len(vec), dim)
	}
	return nil
}

// batches splits texts into consecutive groups of at most size.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		out = append(out, texts[start:min(start+size, len(texts))])
	}
	return out
}
