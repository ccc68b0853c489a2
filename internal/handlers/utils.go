package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ritgame/apiserver/internal/services"
	"github.com/ritgame/apiserver/internal/store"
)

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps store and service errors onto HTTP statuses.
// Anything unrecognised is logged and reported as a 500 with a generic
// message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, detail(err))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, detail(err))
	case errors.Is(err, services.ErrMediaDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		logger.ErrorContext(r.Context(), fallback, "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// detail returns the innermost message of a store error, e.g.
// "externalId is required".
func detail(err error) string {
	var storeErr *store.Error
	if errors.As(err, &storeErr) && storeErr.Err != nil {
		return storeErr.Err.Error()
	}
	if errors.As(err, &storeErr) {
		return storeErr.Kind.Error()
	}
	return err.Error()
}
