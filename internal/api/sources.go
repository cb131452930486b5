package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/seanblong/contentstore/pkg/models"
)

type sourceRequest struct {
	Domain string `json:"domain"`
}

type sourceUpdate struct {
	IsActive *bool `json:"is_active"`
}

func (rt *Router) upsertSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	domain := strings.TrimSpace(req.Domain)
	if domain == "" {
		writeError(w, r, fmt.Errorf("%w: domain is required", models.ErrInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()
	src, err := rt.deps.Store.UpsertSource(ctx, domain)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (rt *Router) listSources(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()
	sources, err := rt.deps.Store.ListActiveSources(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (rt *Router) getSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()

	src, found, err := rt.deps.Store.GetSource(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, notFound("source", id))
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (rt *Router) updateSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req sourceUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()

	var (
		src   models.Source
		found bool
	)
	if req.IsActive == nil {
		src, found, err = rt.deps.Store.GetSource(ctx, id)
	} else {
		src, found, err = rt.deps.Store.SetSourceActive(ctx, id, *req.IsActive)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, notFound("source", id))
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (rt *Router) listSourceContents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()

	if _, found, err := rt.deps.Store.GetSource(ctx, id); err != nil {
		writeError(w, r, err)
		return
	} else if !found {
		writeError(w, r, notFound("source", id))
		return
	}
	contents, err := rt.deps.Store.ListContentsBySource(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}
