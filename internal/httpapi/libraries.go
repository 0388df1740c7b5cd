package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/animedb/animedb-node/internal/organizer"
	"github.com/animedb/animedb-node/internal/store"
)

type createLibraryRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

func (srv *Server) createLibrary(w http.ResponseWriter, r *http.Request) {
	var req createLibraryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "name and path are required")
		return
	}
	typ := store.Category(req.Type)
	if typ == "" {
		typ = organizer.DetectCategory(req.Name)
	}
	lib, err := srv.store.CreateLibrary(req.Name, req.Path, typ)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lib)
}

func (srv *Server) listLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := srv.store.ListLibraries()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, libs)
}

func (srv *Server) getLibrary(w http.ResponseWriter, r *http.Request) {
	lib, err := srv.store.GetLibrary(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

type patchLibraryRequest struct {
	PlexSectionID *int `json:"plex_section_id"`
}

func (srv *Server) patchLibrary(w http.ResponseWriter, r *http.Request) {
	var req patchLibraryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := mux.Vars(r)["id"]
	if req.PlexSectionID != nil {
		if err := srv.store.SetLibraryPlexSection(id, *req.PlexSectionID); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	lib, err := srv.store.GetLibrary(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

func (srv *Server) deleteLibrary(w http.ResponseWriter, r *http.Request) {
	if err := srv.store.DeleteLibrary(mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// scanLibraries enumerates media-root subdirectories not yet registered as a
// library, auto-detecting each candidate's category from its directory name.
func (srv *Server) scanLibraries(w http.ResponseWriter, r *http.Request) {
	existing, err := srv.store.ListLibraries()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	known := make(map[string]bool, len(existing))
	for _, lib := range existing {
		known[filepath.Clean(lib.Path)] = true
	}

	entries, err := os.ReadDir(srv.cfg.MediaRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type candidate struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Category string `json:"category"`
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		full := filepath.Join(srv.cfg.MediaRoot, e.Name())
		if known[filepath.Clean(full)] {
			continue
		}
		candidates = append(candidates, candidate{
			Name:     e.Name(),
			Path:     full,
			Category: string(organizer.DetectCategory(e.Name())),
		})
	}
	writeJSON(w, http.StatusOK, candidates)
}
