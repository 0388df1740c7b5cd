package httpapi

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/animedb/animedb-node/internal/organizer"
	"github.com/animedb/animedb-node/internal/safeurl"
	"github.com/animedb/animedb-node/internal/store"
)

// sourceHostAllowlist is the configurable policy hook called out in the
// node's design notes: hard-coding the allowed source hosts here, in one
// place, rather than inline in the handler.
var sourceHostAllowlist = []string{"youtube.com", "youtu.be"}

type createDownloadRequest struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Season   *int   `json:"season"`
	Episode  *int   `json:"episode"`
}

func (srv *Server) createDownload(w http.ResponseWriter, r *http.Request) {
	var req createDownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !safeurl.HostAllowed(req.URL, sourceHostAllowlist) {
		writeError(w, http.StatusBadRequest, "url must be http(s) and from an allowed host")
		return
	}
	category := store.Category(req.Category)
	if category == "" {
		category = store.CategoryOther
	}

	d, err := srv.store.CreateDownload(req.URL, req.Title, category, req.Season, req.Episode)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	srv.queue.Wake()
	writeJSON(w, http.StatusCreated, map[string]string{"id": d.ID, "status": string(d.Status)})
}

func (srv *Server) listDownloads(w http.ResponseWriter, r *http.Request) {
	status := store.DownloadStatus(r.URL.Query().Get("status"))
	rows, err := srv.store.ListDownloads(status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (srv *Server) getDownload(w http.ResponseWriter, r *http.Request) {
	d, err := srv.store.GetDownload(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type patchDownloadRequest struct {
	Category *string `json:"category"`
	Title    *string `json:"title"`
	Season   *int    `json:"season"`
	Episode  *int    `json:"episode"`
}

func (srv *Server) patchDownload(w http.ResponseWriter, r *http.Request) {
	var req patchDownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	patch := store.DownloadPatch{Title: req.Title, Season: req.Season, Episode: req.Episode}
	if req.Category != nil {
		c := store.Category(*req.Category)
		patch.Category = &c
	}
	id := mux.Vars(r)["id"]
	if err := srv.store.UpdateDownload(id, patch); err != nil {
		writeStoreError(w, err)
		return
	}
	d, err := srv.store.GetDownload(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (srv *Server) deleteDownload(w http.ResponseWriter, r *http.Request) {
	if err := srv.store.DeleteDownload(mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (srv *Server) cancelDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, err := srv.store.GetDownload(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	switch d.Status {
	case store.StatusCompleted, store.StatusFailed, store.StatusCancelled:
		writeError(w, http.StatusBadRequest, "cannot cancel a terminal download")
		return
	case store.StatusQueued:
		if err := srv.store.CancelDownload(id); err != nil {
			writeStoreError(w, err)
			return
		}
	default:
		if err := srv.queue.Cancel(id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type moveRequest struct {
	LibraryID string `json:"library_id"`
}

func (srv *Server) moveDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, err := srv.store.GetDownload(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if d.Status != store.StatusCompleted {
		writeError(w, http.StatusBadRequest, "download is not completed")
		return
	}
	if d.MovedToLibrary {
		writeError(w, http.StatusBadRequest, "download is already moved")
		return
	}

	var req moveRequest
	_ = decodeJSON(r, &req)
	libID := req.LibraryID
	if libID == "" && d.LibraryID != nil {
		libID = *d.LibraryID
	}
	if libID == "" {
		writeError(w, http.StatusBadRequest, "library_id required")
		return
	}
	lib, err := srv.store.GetLibrary(libID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	dest, err := organizer.Move(d, lib)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := srv.store.SetDownloadFilePath(id, dest, true, &lib.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_path": dest})
}

func (srv *Server) unmoveDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, err := srv.store.GetDownload(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !d.MovedToLibrary {
		writeError(w, http.StatusBadRequest, "download has not been moved")
		return
	}
	dest, err := organizer.Unmove(d, srv.cfg.DownloadRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := srv.store.SetDownloadFilePath(id, dest, false, nil); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_path": dest})
}

func (srv *Server) streamDownload(w http.ResponseWriter, r *http.Request) {
	d, err := srv.store.GetDownload(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if d.Status != store.StatusCompleted || d.FilePath == nil {
		writeError(w, http.StatusNotFound, "no file available for this download")
		return
	}

	f, err := os.Open(*d.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found on disk")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(*d.FilePath))
	http.ServeContent(w, r, *d.FilePath, info.ModTime(), f)
}

func contentTypeFor(name string) string {
	switch ext := filepathExt(name); ext {
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

func filepathExt(name string) string {
	for i := len(name) - 1; i >= 0 && name[i] != '/'; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}
