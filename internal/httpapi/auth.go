package httpapi

import (
	"net/http"

	"github.com/animedb/animedb-node/internal/session"
)

type loginRequest struct {
	Password string `json:"password"`
}

// login validates the password (or sets it, on first use) and issues a
// session cookie.
func (srv *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, ok, err := session.Login(srv.store, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	session.SetCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (srv *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := session.Logout(srv.store); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	session.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
