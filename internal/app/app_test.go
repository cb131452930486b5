package app

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/contentstore/internal/ai"
	"github.com/seanblong/contentstore/internal/config"
	"github.com/seanblong/contentstore/internal/search"
	"github.com/seanblong/contentstore/internal/store/memory"
	"github.com/seanblong/contentstore/internal/store/sqlite"
	"github.com/seanblong/contentstore/internal/trigger"
	"github.com/seanblong/contentstore/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func testConfig() config.Specification {
	return config.Specification{
		Provider:      "stub",
		Dim:           16,
		Store:         config.StoreMemory,
		ChunkSize:     200,
		ChunkOverlap:  20,
		IngestWorkers: 2,
		LogLevel:      "info",
	}
}

func TestNew_Memory(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if _, ok := a.Store.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", a.Store)
	}
	if a.Embedder.Dim() != 16 {
		t.Errorf("dim = %d, want 16", a.Embedder.Dim())
	}
	if a.Queue != nil || a.Redis != nil {
		t.Error("queue and redis should be disabled without an address")
	}
	if len(a.Checks()) != 0 {
		t.Errorf("checks = %v", a.Checks())
	}
	if a.Ingest.Chunker.Size() != 200 || a.Ingest.Chunker.Overlap() != 20 {
		t.Errorf("chunker = %d/%d", a.Ingest.Chunker.Size(), a.Ingest.Chunker.Overlap())
	}
	if a.Ingest.Workers != 2 {
		t.Errorf("workers = %d", a.Ingest.Workers)
	}
	if d := a.APIDeps(zerolog.Nop()); d.Queue != nil {
		t.Error("api deps should carry no queue")
	}
}

func TestNew_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := a.Ingest.Run(ctx, nil, "u"); !errors.Is(err, models.ErrTriggerUnavailable) {
		t.Errorf("Run without dify = %v, want ErrTriggerUnavailable", err)
	}

	refs, err := a.Ingest.Ingest(ctx, []trigger.Document{{URL: "https://go.dev/doc", Text: "goroutines are cheap"}})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("refs = %+v", refs)
	}

	res, err := a.Search.Query(ctx, search.Request{Text: "goroutines are cheap"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res) != 1 || res[0].Chunk.ID != refs[0].ChunkID {
		t.Errorf("results = %+v", res)
	}
}

func TestNew_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "data", "cs.db")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if _, ok := a.Store.(*sqlite.Store); !ok {
		t.Errorf("store = %T, want *sqlite.Store", a.Store)
	}
	if err := a.Store.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestNew_Dify(t *testing.T) {
	cfg := testConfig()
	cfg.Dify.APIKey = "app-key"
	cfg.Dify.BaseURL = "http://dify.local/v1/"
	cfg.Dify.Timeout = time.Second

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	dc, ok := a.Ingest.Trigger.(*trigger.DifyClient)
	if !ok {
		t.Fatalf("trigger = %T, want *trigger.DifyClient", a.Ingest.Trigger)
	}
	if dc.BaseURL != "http://dify.local/v1" {
		t.Errorf("base url = %q", dc.BaseURL)
	}
}

func TestNew_Redis(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.CacheTTL = time.Minute
	cfg.EmbedRateLimit = 5
	cfg.EmbedBurst = 2

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Queue == nil || a.Redis == nil {
		t.Fatal("redis address should enable queue and cache")
	}
	if _, ok := a.Embedder.(*ai.CachedEmbedder); !ok {
		t.Errorf("embedder = %T, want *ai.CachedEmbedder", a.Embedder)
	}
	if _, ok := a.Checks()["redis"]; !ok {
		t.Error("missing redis readiness check")
	}
	if d := a.APIDeps(zerolog.Nop()); d.Queue == nil {
		t.Error("api deps should carry the queue")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Specification)
		want   string
	}{
		{"unknown store", func(c *config.Specification) { c.Store = "mongo" }, "unsupported store"},
		{"unknown provider", func(c *config.Specification) { c.Provider = "acme" }, "unsupported provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("WARN", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}

	if _, err := NewLogger("loud", &buf); err == nil {
		t.Error("expected error for invalid level")
	}
}
