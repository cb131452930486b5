package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/seanblong/contentstore/internal/queue"
)

type workflowRequest struct {
	Inputs map[string]any `json:"inputs"`
	User   string         `json:"user"`
}

var errQueueDisabled = errors.New("async ingestion is disabled: no queue configured")

func (rt *Router) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ingestTimeout)
	defer cancel()
	refs, err := rt.deps.Ingest.Run(ctx, req.Inputs, req.User)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (rt *Router) runWorkflowAsync(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Queue == nil {
		writeErrorStatus(w, r, http.StatusServiceUnavailable, errQueueDisabled)
		return
	}
	var req workflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), crudTimeout)
	defer cancel()
	id, err := rt.deps.Queue.EnqueueIngest(ctx, queue.IngestRunPayload{Inputs: req.Inputs, User: req.User})
	if err != nil {
		writeErrorStatus(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "queued"})
}
