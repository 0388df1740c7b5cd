package httpapi

import (
	"errors"
	"net/http"

	"github.com/animedb/animedb-node/internal/update"
)

// updateCheck reports the currently-deployed build and whether an update is
// already running, so the UI can disable the update button mid-flight.
func (srv *Server) updateCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"buildSha":         srv.updater.CurrentBuildSHA(),
		"updateInProgress": srv.updater.InProgress(),
	})
}

// startUpdate kicks off the two-phase update/rollback flow in the
// background and responds immediately; the process exits on success and a
// supervisor restarts it.
func (srv *Server) startUpdate(w http.ResponseWriter, r *http.Request) {
	if err := srv.updater.StartUpdate(srv.exit); err != nil {
		if errors.Is(err, update.ErrUpdateInProgress) {
			writeError(w, http.StatusConflict, "update already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}
