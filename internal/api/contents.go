package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/pkg/models"
)

type contentRequest struct {
	URL        string    `json:"url"`
	SourceID   uuid.UUID `json:"source_id"`
	RawContent *string   `json:"raw_content"`
}

func (rt *Router) upsertContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, r, fmt.Errorf("%w: url is required", models.ErrInvalidInput))
		return
	}
	if req.SourceID == uuid.Nil {
		writeError(w, r, fmt.Errorf("%w: source_id is required", models.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()
	if _, found, err := rt.deps.Store.GetSource(ctx, req.SourceID); err != nil {
		writeError(w, r, err)
		return
	} else if !found {
		writeError(w, r, notFound("source", req.SourceID))
		return
	}

	c, err := rt.deps.Store.UpsertContent(ctx, req.SourceID, req.URL, req.RawContent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) getContent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()

	c, found, err := rt.deps.Store.GetContent(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, notFound("content", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) updateContent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch store.ContentPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Status != nil && strings.TrimSpace(*patch.Status) == "" {
		writeError(w, r, fmt.Errorf("%w: status must not be empty", models.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()
	c, found, err := rt.deps.Store.UpdateContent(ctx, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, notFound("content", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) listContentChunks(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()

	if _, found, err := rt.deps.Store.GetContent(ctx, id); err != nil {
		writeError(w, r, err)
		return
	} else if !found {
		writeError(w, r, notFound("content", id))
		return
	}
	chunks, err := rt.deps.Store.ChunksByContent(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}
