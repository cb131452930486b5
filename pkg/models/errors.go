package models

import (
	"errors"
	"net/http"
)

// Error kinds. Callers wrap these with fmt.Errorf("%w: ...: %w", kind, cause)
// and classify with errors.Is.
var (
	// ErrMalformedTriggerResponse means the trigger payload is missing
	// fields or has mismatched url/contents lists.
	ErrMalformedTriggerResponse = errors.New("malformed trigger response")

	// ErrTriggerUnavailable means the trigger call itself failed.
	ErrTriggerUnavailable = errors.New("trigger unavailable")

	// ErrEmbeddingUnavailable means the embedding provider failed
	// (transport, auth, quota or a bad response).
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrPersistence means the storage layer rejected an operation.
	ErrPersistence = errors.New("persistence failure")

	ErrNotFound = errors.New("not found")

	ErrInvalidInput = errors.New("invalid input")
)

// StatusCode maps an error to the HTTP status class it surfaces as.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedTriggerResponse), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrTriggerUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
