package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TestConnection lets clients check that they can reach the API.
func TestConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "GET test_connection",
		"code":    http.StatusOK,
	})
}

// NotImplemented answers routes that are reserved but not built yet.
func NotImplemented(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "not implemented")
}

// PlaceholderRouter reserves the beatmap and score routes.
func PlaceholderRouter(r chi.Router) {
	for _, pattern := range []string{
		"/beatmaps",
		"/beatmaps/{id}",
		"/beatmaps/{id}/report",
		"/beatmaps/{id}/scores",
		"/scores/{id}",
		"/scores/{id}/report",
	} {
		r.HandleFunc(pattern, NotImplemented)
	}
}
