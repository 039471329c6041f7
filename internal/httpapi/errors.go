package httpapi

import (
	"encoding/json"
	"net/http"

	"gend/internal/download"
	"gend/internal/engine"
	"gend/internal/routing"
	"gend/internal/session"
	"gend/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps well-known service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case routing.IsEmptyInput(err), routing.IsBadPolicy(err), routing.IsNoModel(err):
		return http.StatusBadRequest
	case session.IsNotFound(err):
		return http.StatusNotFound
	case session.IsClosed(err):
		return http.StatusConflict
	case session.IsNoUserTurn(err):
		return http.StatusConflict
	case download.IsBadSubmit(err), download.IsUnknownSource(err):
		return http.StatusBadRequest
	case download.IsQueueSaturated(err):
		return http.StatusTooManyRequests
	case engine.IsKind(err, engine.NotFound):
		return http.StatusNotFound
	case engine.IsKind(err, engine.QueueFull):
		return http.StatusTooManyRequests
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
