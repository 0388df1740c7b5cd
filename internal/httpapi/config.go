package httpapi

import (
	"net/http"

	"github.com/animedb/animedb-node/internal/store"
)

// getConfig is an open, unauthenticated endpoint: the login page and
// now-playing UI need it before a session exists.
func (srv *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	plexURL, plexConnected, err := srv.store.GetSetting(store.SettingPlexURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outputFormat":  srv.cfg.OutputFormat,
		"plexConnected": plexConnected && plexURL != "",
		"plexUrl":       plexURL,
	})
}
