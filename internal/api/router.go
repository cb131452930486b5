// Package api exposes sources, contents, chunks and ingestion over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/contentstore/internal/queue"
	"github.com/seanblong/contentstore/internal/search"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/pkg/models"
)

// Store is the persistence the handlers read and write.
type Store interface {
	store.SourceStore
	store.ContentStore
	ChunksByContent(ctx context.Context, contentID uuid.UUID) ([]models.Chunk, error)
	Ping(ctx context.Context) error
}

type Searcher interface {
	Query(ctx context.Context, req search.Request) ([]models.SearchResult, error)
}

// Ingester runs workflows and creates single chunks.
type Ingester interface {
	Run(ctx context.Context, inputs map[string]any, user string) ([]models.ChunkRef, error)
	CreateChunk(ctx context.Context, contentID uuid.UUID, seq int, text string) (models.Chunk, error)
}

type Enqueuer interface {
	EnqueueIngest(ctx context.Context, payload queue.IngestRunPayload) (string, error)
}

// Checker reports whether a dependency is ready to serve.
type Checker func(ctx context.Context) error

// Deps wires the router. Queue may be nil, in which case the async
// workflow route answers 503. Checks run on /readyz next to the store ping.
type Deps struct {
	Store  Store
	Search Searcher
	Ingest Ingester
	Queue  Enqueuer
	Checks map[string]Checker
	Logger zerolog.Logger
}

const (
	crudTimeout   = 5 * time.Second
	searchTimeout = 30 * time.Second
	ingestTimeout = 10 * time.Minute
)

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(d Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: d}
}

// Setup registers middleware and routes and returns the root handler.
func (rt *Router) Setup() http.Handler {
	r := rt.mux
	logger := rt.deps.Logger

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
	}))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", rt.healthz)
	r.Get("/readyz", rt.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Post("/", rt.upsertSource)
			r.Get("/", rt.listSources)
			r.Get("/{id}", rt.getSource)
			r.Patch("/{id}", rt.updateSource)
			r.Get("/{id}/contents", rt.listSourceContents)
		})
		r.Route("/contents", func(r chi.Router) {
			r.Post("/", rt.upsertContent)
			r.Get("/{id}", rt.getContent)
			r.Patch("/{id}", rt.updateContent)
			r.Get("/{id}/chunks", rt.listContentChunks)
		})
		r.Route("/chunks", func(r chi.Router) {
			r.Post("/", rt.createChunk)
			r.Post("/search", rt.searchChunks)
		})
		r.Route("/dify", func(r chi.Router) {
			r.Post("/run-workflow", rt.runWorkflow)
			r.Post("/run-workflow/async", rt.runWorkflowAsync)
		})
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK
	run := func(name string, check Checker) {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			return
		}
		checks[name] = "ok"
	}

	run("store", rt.deps.Store.Ping)
	for name, check := range rt.deps.Checks {
		run(name, check)
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
