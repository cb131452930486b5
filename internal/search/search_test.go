package search

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/seanblong/contentstore/internal/ai"
	"github.com/seanblong/contentstore/internal/store/memory"
	"github.com/seanblong/contentstore/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockEmbedder implements ai.Embedder for testing
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) (ai.Embedding, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) (ai.Embedding, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return ai.Embedding{Vector: []float32{0.1, 0.2, 0.3}, Model: "mock"}, nil
}

func (m *MockEmbedder) EmbedMany(ctx context.Context, texts []string) ([]ai.Embedding, error) {
	out := make([]ai.Embedding, len(texts))
	for i, t := range texts {
		e, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (m *MockEmbedder) Dim() int      { return 3 }
func (m *MockEmbedder) Model() string { return "mock" }

// MockFinder implements Finder for testing
type MockFinder struct {
	FindSimilarFunc func(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error)
}

func (m *MockFinder) FindSimilar(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error) {
	if m.FindSimilarFunc != nil {
		return m.FindSimilarFunc(ctx, vec, limit, threshold)
	}
	return []models.SearchResult{}, nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestService_Query(t *testing.T) {
	sample := []models.SearchResult{{Chunk: models.Chunk{ID: uuid.New(), Text: "hello"}, Score: 0.95}}

	tests := []struct {
		name          string
		req           Request
		wantText      string
		wantLimit     int
		wantThreshold float64
		embedErr      error
		findErr       error
		want          []models.SearchResult
		wantErr       error
	}{
		{
			name:          "defaults",
			req:           Request{Text: "hello world"},
			wantText:      "hello world",
			wantLimit:     10,
			wantThreshold: 0.7,
			want:          sample,
		},
		{
			name:          "explicit limit and threshold",
			req:           Request{Text: "  padded  ", Limit: intPtr(3), Threshold: floatPtr(0.2)},
			wantText:      "padded",
			wantLimit:     3,
			wantThreshold: 0.2,
			want:          sample,
		},
		{
			name:          "zero limit passes through",
			req:           Request{Text: "q", Limit: intPtr(0), Threshold: floatPtr(0)},
			wantText:      "q",
			wantLimit:     0,
			wantThreshold: 0,
			want:          sample,
		},
		{
			name:    "empty text",
			req:     Request{Text: "   "},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:    "negative limit",
			req:     Request{Text: "q", Limit: intPtr(-1)},
			wantErr: models.ErrInvalidInput,
		},
		{
			name:     "embedding error propagates",
			req:      Request{Text: "q"},
			embedErr: fmt.Errorf("%w: quota", models.ErrEmbeddingUnavailable),
			wantErr:  models.ErrEmbeddingUnavailable,
		},
		{
			name:     "store error propagates",
			req:      Request{Text: "q"},
			wantText: "q", wantLimit: 10, wantThreshold: 0.7,
			findErr: fmt.Errorf("%w: db down", models.ErrPersistence),
			wantErr: models.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findCalled := false
			emb := &MockEmbedder{EmbedFunc: func(ctx context.Context, text string) (ai.Embedding, error) {
				if tt.embedErr != nil {
					return ai.Embedding{}, tt.embedErr
				}
				if text != tt.wantText {
					t.Errorf("embedded %q, want %q", text, tt.wantText)
				}
				return ai.Embedding{Vector: []float32{1, 2, 3}}, nil
			}}
			finder := &MockFinder{FindSimilarFunc: func(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error) {
				findCalled = true
				if !reflect.DeepEqual(vec, []float32{1, 2, 3}) {
					t.Errorf("vec = %v", vec)
				}
				if limit != tt.wantLimit || threshold != tt.wantThreshold {
					t.Errorf("limit=%d threshold=%v, want %d %v", limit, threshold, tt.wantLimit, tt.wantThreshold)
				}
				if tt.findErr != nil {
					return nil, tt.findErr
				}
				return sample, nil
			}}

			got, err := NewService(emb, finder).Query(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Query() error = %v, want %v", err, tt.wantErr)
				}
				if tt.findErr == nil && findCalled {
					t.Error("store queried after a failed precondition")
				}
				return
			}
			if err != nil {
				t.Fatalf("Query() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Query() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestService_Query_ContextCancellation(t *testing.T) {
	finder := &MockFinder{FindSimilarFunc: func(ctx context.Context, vec []float32, limit int, threshold float64) ([]models.SearchResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return []models.SearchResult{}, nil
		}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(&MockEmbedder{}, finder).Query(ctx, Request{Text: "test query"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Query() error = %v, want context.Canceled", err)
	}
}

func TestService_Query_MemoryStore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Migrate(ctx, 3); err != nil {
		t.Fatal(err)
	}
	src, _ := st.UpsertSource(ctx, "a.com")
	content, _ := st.UpsertContent(ctx, src.ID, "http://a.com/x", nil)
	_, err := st.BatchCreateChunks(ctx, []models.Chunk{
		{ContentID: content.ID, Sequence: 1, Text: "a", Embedding: []float32{1, 0, 0}},
		{ContentID: content.ID, Sequence: 2, Text: "b", Embedding: []float32{0.9, 0.1, 0}},
		{ContentID: content.ID, Sequence: 3, Text: "c", Embedding: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	emb := &MockEmbedder{EmbedFunc: func(context.Context, string) (ai.Embedding, error) {
		return ai.Embedding{Vector: []float32{1, 0, 0}}, nil
	}}
	res, err := NewService(emb, st).Query(ctx, Request{Text: "anything"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(res) != 2 || res[0].Chunk.Text != "a" || res[1].Chunk.Text != "b" {
		t.Errorf("Query() = %+v, want chunks a then b", res)
	}
}
