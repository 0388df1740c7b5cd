package httpapi

import (
	"net/http"
)

func (srv *Server) getNetworking(w http.ResponseWriter, r *http.Request) {
	state, externalURL, lastErr := srv.nat.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":       string(state),
		"externalUrl": externalURL,
		"lastError":   lastErr,
		"port":        srv.cfg.UPnPPort,
	})
}

type externalURLRequest struct {
	URL string `json:"url"`
}

func (srv *Server) putExternalURL(w http.ResponseWriter, r *http.Request) {
	var req externalURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	srv.cfg.ExternalURL = req.URL
	srv.nat.SetManualURL(r.Context(), req.URL)
	_, externalURL, _ := srv.nat.State()
	writeJSON(w, http.StatusOK, map[string]string{"externalUrl": externalURL})
}

func (srv *Server) retryUPnP(w http.ResponseWriter, r *http.Request) {
	state := srv.nat.RetryUpnp(r.Context(), srv.cfg.UPnPPort)
	writeJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}
