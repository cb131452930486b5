package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/contentstore/internal/search"
	"github.com/seanblong/contentstore/pkg/models"
)

type chunkRequest struct {
	ContentID uuid.UUID `json:"content_id"`
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
}

func (rt *Router) createChunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ContentID == uuid.Nil {
		writeError(w, r, fmt.Errorf("%w: content_id is required", models.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()
	c, err := rt.deps.Ingest.CreateChunk(ctx, req.ContentID, req.Sequence, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) searchChunks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req search.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()
	res, err := rt.deps.Search.Query(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, finiteScores(res))

	hlog.FromRequest(r).Info().Int("results", len(res)).Dur("dur", time.Since(start)).Msg("served search")
}
