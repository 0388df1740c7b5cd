package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/animedb/animedb-node/internal/store"
)

func TestCreateAndGetDownload(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	body, _ := json.Marshal(createDownloadRequest{
		URL:      "https://www.youtube.com/watch?v=abc123",
		Category: "tv",
		Title:    "Some Show",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id := created["id"]
	if id == "" {
		t.Fatal("create response missing id")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/downloads/"+id, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var d store.Download
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if d.Title != "Some Show" || d.Category != store.CategoryTV {
		t.Errorf("got title=%q category=%q, want Some Show/tv", d.Title, d.Category)
	}
}

func TestCreateDownload_rejectsDisallowedHost(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	body, _ := json.Marshal(createDownloadRequest{URL: "https://evil.example.com/video", Category: "movies"})
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for disallowed host", rec.Code)
	}
}

func TestGetDownload_notFound(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPatchDownload_updatesOnlyGivenFields(t *testing.T) {
	srv := newTestServer(t)

	d, err := srv.store.CreateDownload("https://youtu.be/xyz", "Original Title", store.CategoryOther, nil, nil)
	if err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	newTitle := "Renamed Title"
	body, _ := json.Marshal(patchDownloadRequest{Title: &newTitle})
	req := httptest.NewRequest(http.MethodPatch, "/api/downloads/"+d.ID, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got, err := srv.store.GetDownload(d.ID)
	if err != nil {
		t.Fatalf("GetDownload: %v", err)
	}
	if got.Title != newTitle {
		t.Errorf("title = %q, want %q", got.Title, newTitle)
	}
	if got.Category != store.CategoryOther {
		t.Errorf("category changed to %q, want unchanged %q", got.Category, store.CategoryOther)
	}
}

func TestCancelDownload_rejectsTerminalStatus(t *testing.T) {
	srv := newTestServer(t)
	d, err := srv.store.CreateDownload("https://youtu.be/xyz", "T", store.CategoryOther, nil, nil)
	if err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}
	if err := srv.store.CancelDownload(d.ID); err != nil {
		t.Fatalf("CancelDownload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/downloads/"+d.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for already-cancelled download", rec.Code)
	}
}

func TestStreamDownload_supportsRangeRequests(t *testing.T) {
	srv := newTestServer(t)
	d, err := srv.store.CreateDownload("https://youtu.be/xyz", "T", store.CategoryOther, nil, nil)
	if err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	filePath := filepath.Join(t.TempDir(), "video.mkv")
	content := bytes.Repeat([]byte("abcdefgh"), 1024)
	if err := os.WriteFile(filePath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := srv.store.CompleteDownload(d.ID, filePath); err != nil {
		t.Fatalf("CompleteDownload: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/"+d.ID+"/stream", nil)
	req.Header.Set("Range", "bytes=0-9")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206 on Range request: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 10 {
		t.Errorf("body length = %d, want 10", rec.Body.Len())
	}
}
