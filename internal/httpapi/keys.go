package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/animedb/animedb-node/internal/apikey"
)

type createKeyRequest struct {
	Label string `json:"label"`
}

func (srv *Server) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key, raw, err := apikey.Generate(srv.store, req.Label)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"label":      key.Label,
		"key":        raw,
		"created_at": key.CreatedAt,
	})
}

func (srv *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := apikey.List(srv.store)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (srv *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	if err := apikey.Revoke(srv.store, mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
