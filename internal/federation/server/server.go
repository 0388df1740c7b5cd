// Package server implements the federation endpoints a remote peer calls
// against us: library listing, file streaming, announce, and gossip resolve.
// Every handler here sits behind the API-key Gate.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/animedb/animedb-node/internal/store"
)

// Server exposes the federation HTTP surface.
type Server struct {
	store        *store.Store
	instanceID   string
	instanceName string
}

// New returns a Server bound to s, reporting instanceID/instanceName in
// library responses.
func New(s *store.Store, instanceID, instanceName string) *Server {
	return &Server{store: s, instanceID: instanceID, instanceName: instanceName}
}

type libraryItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Season    *int   `json:"season,omitempty"`
	Episode   *int   `json:"episode,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Library handles GET /federation/library.
func (s *Server) Library(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListDownloads(store.StatusCompleted)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]libraryItem, 0, len(rows))
	for _, d := range rows {
		if strings.HasPrefix(d.URL, "federation://") {
			continue // replicated items are never re-exposed, to prevent federation loops
		}
		items = append(items, libraryItem{
			ID:        d.ID,
			Title:     d.Title,
			Category:  string(d.Category),
			Season:    d.Season,
			Episode:   d.Episode,
			Status:    string(d.Status),
			CreatedAt: d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instanceId":   s.instanceID,
		"instanceName": s.instanceName,
		"items":        items,
	})
}

// Stream handles GET /federation/download/{id}/stream.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, err := s.store.GetDownload(id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if d.Status != store.StatusCompleted || d.FilePath == nil {
		http.Error(w, "not available", http.StatusNotFound)
		return
	}

	f, err := os.Open(*d.FilePath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	base := filepath.Base(*d.FilePath)
	w.Header().Set("Content-Type", contentTypeFor(base))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, base))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.WriteHeader(http.StatusOK)
	_, _ = copyFile(w, f)
}

func copyFile(w http.ResponseWriter, f *os.File) (int64, error) {
	return f.WriteTo(w)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mkv":
		return "video/x-matroska"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

type announceRequest struct {
	InstanceID string `json:"instanceId"`
	URL        string `json:"url"`
}

// Announce handles POST /federation/announce.
func (s *Server) Announce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	peers, err := s.store.ListPeers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, p := range peers {
		if p.InstanceID == nil || *p.InstanceID != req.InstanceID {
			continue
		}
		newURL := strings.TrimRight(req.URL, "/")
		if err := s.store.UpdatePeerURL(p.ID, newURL); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := s.store.TouchPeerLastSeen(p.ID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": false})
}

// Resolve handles GET /federation/resolve/{instanceId}, the gossip substrate.
func (s *Server) Resolve(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instanceId"]
	peers, err := s.store.ListPeers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, p := range peers {
		if p.InstanceID != nil && *p.InstanceID == instanceID {
			var lastSeen string
			if p.LastSeen != nil {
				lastSeen = p.LastSeen.Format("2006-01-02T15:04:05Z07:00")
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"instanceId": instanceID,
				"name":       p.Name,
				"url":        p.URL,
				"lastSeen":   lastSeen,
			})
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
