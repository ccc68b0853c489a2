package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	apiKeyHeader = "X-API-Key"
	apiKeyQuery  = "API_KEY"
)

// RequireAPIKey rejects requests that do not present the shared API key,
// either in the X-API-Key header or the API_KEY query parameter.
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedAPIKey(r)
			if len(expected) == 0 || presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get(apiKeyQuery))
}
