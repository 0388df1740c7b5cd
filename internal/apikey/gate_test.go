package apikey

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/animedb/animedb-node/internal/store"
)

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "animedb.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGate_missingKey(t *testing.T) {
	s := openTest(t)
	handler := Gate(s)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/federation/library", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGate_invalidKey(t *testing.T) {
	s := openTest(t)
	handler := Gate(s)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/federation/library", nil)
	req.Header.Set("X-Api-Key", "not-a-real-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGate_validKeyViaHeader(t *testing.T) {
	s := openTest(t)
	_, raw, err := Generate(s, "peer")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	handler := Gate(s)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/federation/library", nil)
	req.Header.Set("X-Api-Key", raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestGate_validKeyViaBearer(t *testing.T) {
	s := openTest(t)
	_, raw, err := Generate(s, "peer")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	handler := Gate(s)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/federation/library", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRevoke_keyNoLongerWorks(t *testing.T) {
	s := openTest(t)
	k, raw, err := Generate(s, "peer")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := Revoke(s, k.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	handler := Gate(s)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/federation/library", nil)
	req.Header.Set("X-Api-Key", raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status after revoke = %d, want 401", rec.Code)
	}
}
