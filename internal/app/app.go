// Package app assembles the services described by a config.Specification.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/contentstore/internal/ai"
	"github.com/seanblong/contentstore/internal/api"
	"github.com/seanblong/contentstore/internal/chunker"
	"github.com/seanblong/contentstore/internal/config"
	"github.com/seanblong/contentstore/internal/ingest"
	"github.com/seanblong/contentstore/internal/queue"
	"github.com/seanblong/contentstore/internal/search"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/internal/store/memory"
	"github.com/seanblong/contentstore/internal/store/postgres"
	"github.com/seanblong/contentstore/internal/store/sqlite"
	"github.com/seanblong/contentstore/internal/trigger"
)

// App holds the wired services of one process. Redis and Queue are nil
// when no Redis address is configured.
type App struct {
	Config   config.Specification
	Store    store.Store
	Embedder ai.Embedder
	Ingest   *ingest.Service
	Search   *search.Service
	Redis    *redis.Client
	Queue    *queue.Client
}

// NewLogger builds the process logger and makes it the global one used by
// library packages.
func NewLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// New opens the store, migrates it to the embedder's dimension and builds
// the ingestion and search services on top.
func New(ctx context.Context, cfg config.Specification) (*App, error) {
	a := &App{Config: cfg}

	emb, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st

	dim := emb.Dim()
	if err := st.Migrate(ctx, dim); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Store, err)
	}
	log.Info().Str("store", cfg.Store).Int("embedding_dim", dim).Str("embed_model", emb.Model()).Msg("store ready")

	if cfg.EmbedRateLimit > 0 {
		emb = ai.NewRateLimitedEmbedder(emb, cfg.EmbedRateLimit, cfg.EmbedBurst, cfg.EmbedBatchSize)
	}
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		emb = ai.NewCachedEmbedder(emb, ai.NewRedisKV(a.Redis), cfg.Redis.CacheTTL)
		a.Queue = queue.NewClient(queue.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
		log.Info().Str("addr", cfg.Redis.Addr).Dur("cache_ttl", cfg.Redis.CacheTTL).Msg("redis cache and queue enabled")
	}
	a.Embedder = emb

	var tr trigger.Client
	if cfg.Dify.APIKey != "" {
		dc, err := trigger.NewDifyClient(cfg.Dify.APIKey, cfg.Dify.BaseURL, cfg.Dify.Timeout)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		tr = dc
	} else {
		log.Warn().Msg("no dify api key configured; workflow runs are disabled")
	}

	ch := chunker.New(chunker.WithSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))
	a.Ingest = ingest.NewService(tr, st, emb, ch, cfg.IngestWorkers)
	a.Search = search.NewService(emb, st)
	return a, nil
}

func newEmbedder(ctx context.Context, cfg config.Specification) (ai.Embedder, error) {
	cc := &ai.ClientConfig{
		APIKey:     cfg.APIKey,
		EmbedModel: cfg.EmbedModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
		BaseURL:    cfg.BaseURL,
		BatchSize:  cfg.EmbedBatchSize,
		Provider:   ai.Provider(strings.ToLower(cfg.Provider)),
	}
	emb, err := ai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return emb, nil
}

func openStore(ctx context.Context, cfg config.Specification) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		st, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return st, nil
	case config.StoreSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return st, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store: %q", cfg.Store)
	}
}

// Checks returns the readiness probes beyond the store ping.
func (a *App) Checks() map[string]api.Checker {
	checks := map[string]api.Checker{}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// APIDeps wires the HTTP router to this app.
func (a *App) APIDeps(logger zerolog.Logger) api.Deps {
	d := api.Deps{
		Store:  a.Store,
		Search: a.Search,
		Ingest: a.Ingest,
		Checks: a.Checks(),
		Logger: logger,
	}
	if a.Queue != nil {
		d.Queue = a.Queue
	}
	return d
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
