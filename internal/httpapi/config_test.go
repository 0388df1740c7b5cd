package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/animedb/animedb-node/internal/store"
)

func TestGetConfig_noPlexConfigured(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["outputFormat"] != "mkv" {
		t.Errorf("outputFormat = %v, want mkv", got["outputFormat"])
	}
	if got["plexConnected"] != false {
		t.Errorf("plexConnected = %v, want false", got["plexConnected"])
	}
}

func TestGetConfig_plexConfigured(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.store.SetSetting(store.SettingPlexURL, "http://plex.local:32400"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["plexConnected"] != true {
		t.Errorf("plexConnected = %v, want true", got["plexConnected"])
	}
	if got["plexUrl"] != "http://plex.local:32400" {
		t.Errorf("plexUrl = %v", got["plexUrl"])
	}
}
