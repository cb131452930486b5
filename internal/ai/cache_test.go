package ai

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/contentstore/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockKV implements KV for testing
type MockKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	GetErr  error
	SetErr  error
	sets    int
	lastTTL time.Duration
}

func NewMockKV() *MockKV {
	return &MockKV{data: make(map[string][]byte)}
}

func (m *MockKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *MockKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	m.sets++
	m.lastTTL = ttl
	return nil
}

func TestCachedEmbedder_HitsSkipProvider(t *testing.T) {
	ctx := context.Background()
	inner := &MockEmbedder{}
	kv := NewMockKV()
	c := NewCachedEmbedder(inner, kv, time.Hour)

	first, err := c.EmbedMany(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedMany failed: %v", err)
	}
	if kv.sets != 2 || kv.lastTTL != time.Hour {
		t.Errorf("Expected 2 cache writes with 1h ttl, got %d / %v", kv.sets, kv.lastTTL)
	}

	second, err := c.EmbedMany(ctx, []string{"beta", "gamma", "alpha"})
	if err != nil {
		t.Fatalf("EmbedMany failed: %v", err)
	}
	if len(inner.Calls) != 2 || !reflect.DeepEqual(inner.Calls[1], []string{"gamma"}) {
		t.Errorf("Expected only the miss to reach the provider, got calls %v", inner.Calls)
	}
	if !reflect.DeepEqual(second[0].Vector, first[1].Vector) || !reflect.DeepEqual(second[2].Vector, first[0].Vector) {
		t.Error("Cached vectors returned out of order")
	}
	if second[1].Vector[0] != float32(len("gamma")) {
		t.Errorf("Unexpected vector for miss: %v", second[1].Vector)
	}
}

func TestCachedEmbedder_CacheFailuresFallThrough(t *testing.T) {
	ctx := context.Background()
	inner := &MockEmbedder{}
	kv := NewMockKV()
	kv.GetErr = errors.New("connection refused")
	kv.SetErr = errors.New("connection refused")
	c := NewCachedEmbedder(inner, kv, 0)

	e, err := c.Embed(ctx, "text")
	if err != nil {
		t.Fatalf("Expected fallthrough to provider, got %v", err)
	}
	if len(e.Vector) != 3 {
		t.Errorf("Expected 3 dimensions, got %d", len(e.Vector))
	}
}

func TestCachedEmbedder_ProviderErrorPropagates(t *testing.T) {
	want := errors.New("provider down")
	inner := &MockEmbedder{EmbedManyFunc: func(ctx context.Context, texts []string) ([]Embedding, error) {
		return nil, want
	}}
	c := NewCachedEmbedder(inner, NewMockKV(), time.Minute)

	if _, err := c.Embed(context.Background(), "x"); !errors.Is(err, want) {
		t.Errorf("Expected provider error, got %v", err)
	}
}

func TestCachedEmbedder_ShortProviderResponse(t *testing.T) {
	inner := &MockEmbedder{EmbedManyFunc: func(ctx context.Context, texts []string) ([]Embedding, error) {
		return []Embedding{{Vector: []float32{1, 0, 0}, Model: "mock"}}, nil
	}}
	kv := NewMockKV()
	c := NewCachedEmbedder(inner, kv, time.Minute)

	_, err := c.EmbedMany(context.Background(), []string{"a", "b"})
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("Expected ErrEmbeddingUnavailable, got %v", err)
	}
	if kv.sets != 0 {
		t.Errorf("Expected nothing cached, got %d writes", kv.sets)
	}
}

func TestCachedEmbedder_IgnoresWrongDimension(t *testing.T) {
	ctx := context.Background()
	inner := &MockEmbedder{}
	kv := NewMockKV()
	c := NewCachedEmbedder(inner, kv, time.Minute)
	kv.data[c.key("x")] = []byte(`[1,2]`)

	e, err := c.Embed(ctx, "x")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(e.Vector) != 3 || len(inner.Calls) != 1 {
		t.Errorf("Expected stale entry to be refreshed from provider, got %v", e.Vector)
	}
}
