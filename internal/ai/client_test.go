package ai

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/seanblong/contentstore/pkg/models"
)

// MockEmbedder implements Embedder for testing
type MockEmbedder struct {
	EmbedManyFunc func(ctx context.Context, texts []string) ([]Embedding, error)
	DimValue      int
	Calls         [][]string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := m.EmbedMany(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}

func (m *MockEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Embedding, error) {
	m.Calls = append(m.Calls, append([]string(nil), texts...))
	if m.EmbedManyFunc != nil {
		return m.EmbedManyFunc(ctx, texts)
	}
	out := make([]Embedding, len(texts))
	for i, t := range texts {
		out[i] = Embedding{Vector: []float32{float32(len(t)), 1, 0}, Model: "mock"}
	}
	return out, nil
}

func (m *MockEmbedder) Dim() int {
	if m.DimValue == 0 {
		return 3
	}
	return m.DimValue
}

func (m *MockEmbedder) Model() string { return "mock" }

func TestProviderConstants(t *testing.T) {
	tests := []struct {
		provider Provider
		expected string
	}{
		{ProviderOpenAI, "openai"},
		{ProviderVertexAI, "vertexai"},
		{ProviderStub, "stub"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if string(tt.provider) != tt.expected {
				t.Errorf("Provider constant mismatch. Expected: %s, Got: %s", tt.expected, string(tt.provider))
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	if _, err := NewClient(ctx, nil); err == nil {
		t.Error("Expected error for nil config")
	}

	_, err := NewClient(ctx, &ClientConfig{Provider: "unknown"})
	if err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("Expected unsupported provider error, got %v", err)
	}

	e, err := NewClient(ctx, &ClientConfig{Provider: ProviderStub, Dim: 16})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.Dim() != 16 {
		t.Errorf("Expected Dim 16, got %d", e.Dim())
	}

	cfg := &ClientConfig{Provider: ProviderOpenAI, APIKey: "k"}
	e, err = NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := e.(*OpenAIClient); !ok {
		t.Errorf("Expected *OpenAIClient, got %T", e)
	}
	if cfg.BatchSize != defaultBatchSize {
		t.Errorf("Expected BatchSize default %d, got %d", defaultBatchSize, cfg.BatchSize)
	}
}

func TestStubClient(t *testing.T) {
	ctx := context.Background()
	s := NewStubClient(40)

	a1, err := s.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	a2, _ := s.Embed(ctx, "hello")
	b, _ := s.Embed(ctx, "world")

	if len(a1.Vector) != 40 {
		t.Errorf("Expected 40 dimensions, got %d", len(a1.Vector))
	}
	if !reflect.DeepEqual(a1, a2) {
		t.Error("Expected equal texts to produce equal embeddings")
	}
	if reflect.DeepEqual(a1.Vector, b.Vector) {
		t.Error("Expected different texts to produce different embeddings")
	}
	if a1.Model != "stub" {
		t.Errorf("Expected model 'stub', got %q", a1.Model)
	}

	var norm float64
	for _, x := range a1.Vector {
		norm += float64(x) * float64(x)
	}
	if math.Sqrt(norm) == 0 {
		t.Error("Expected non-zero norm")
	}

	if NewStubClient(0).Dim() <= 0 {
		t.Error("Expected positive default dimension")
	}
}

func TestStubClient_EmbedManyPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStubClient(8)

	texts := []string{"a", "b", "c"}
	many, err := s.EmbedMany(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedMany failed: %v", err)
	}
	for i, txt := range texts {
		one, _ := s.Embed(ctx, txt)
		if !reflect.DeepEqual(one, many[i]) {
			t.Errorf("EmbedMany[%d] does not match Embed(%q)", i, txt)
		}
	}
}

func TestStubClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStubClient(4).Embed(ctx, "x")
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("Expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestCheckDim(t *testing.T) {
	if err := checkDim("p", []float32{1, 2}, 2); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := checkDim("p", []float32{1, 2}, 3); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("Expected ErrEmbeddingUnavailable, got %v", err)
	}
	if err := checkDim("p", nil, 0); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("Expected ErrEmbeddingUnavailable for empty vector, got %v", err)
	}
}

func TestBatches(t *testing.T) {
	got := batches([]string{"a", "b", "c", "d", "e"}, 2)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if len(batches(nil, 2)) != 0 {
		t.Error("Expected no batches for empty input")
	}
}
