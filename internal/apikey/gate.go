// Package apikey implements credential management and the HTTP gate used to
// authenticate inbound federation calls.
package apikey

import (
	"net/http"
	"strings"

	"github.com/animedb/animedb-node/internal/store"
)

// Generate mints a new key under label and returns the row plus the raw value
// shown to the caller exactly once.
func Generate(s *store.Store, label string) (*store.ApiKey, string, error) {
	return s.GenerateApiKey(label)
}

// List returns all registered keys (hashes only, never raw values).
func List(s *store.Store) ([]*store.ApiKey, error) {
	return s.ListApiKeys()
}

// Revoke deletes a key by ID.
func Revoke(s *store.Store, id string) error {
	return s.DeleteApiKey(id)
}

// Gate returns middleware that rejects requests lacking a valid
// "Authorization: Bearer <key>" or "X-Api-Key: <key>" header matching a
// registered key's hash. It is applied to every /federation/* route.
func Gate(s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractKey(r)
			if raw == "" {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}
			if _, err := s.FindApiKeyByHash(store.HashApiKey(raw)); err != nil {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractKey(r *http.Request) string {
	if v := r.Header.Get("X-Api-Key"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
