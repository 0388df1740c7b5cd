// Package session implements the minimal password-session contract the HTTP
// router depends on. The login UI and password-change flow are an external
// collaborator; this package only owns the cookie/token shape and the
// middleware that gates session-protected routes.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/animedb/animedb-node/internal/store"
)

const cookieName = "animedb_session"

// HashPassword returns the stored form of a raw password.
func HashPassword(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Login validates raw against the stored password hash and, on success,
// mints and persists a new session token, returning it for use as a cookie
// value. If no password has ever been set, any password is accepted and one
// is set on first login.
func Login(s *store.Store, raw string) (token string, ok bool, err error) {
	storedHash, exists, err := s.GetSetting(store.SettingPasswordHash)
	if err != nil {
		return "", false, err
	}
	if !exists {
		if err := s.SetSetting(store.SettingPasswordHash, HashPassword(raw)); err != nil {
			return "", false, err
		}
	} else if subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashPassword(raw))) != 1 {
		return "", false, nil
	}

	tok, err := newToken()
	if err != nil {
		return "", false, err
	}
	if err := s.SetSetting(store.SettingSessionToken, tok); err != nil {
		return "", false, err
	}
	return tok, true, nil
}

// Logout invalidates the current session token.
func Logout(s *store.Store) error {
	return s.DeleteSetting(store.SettingSessionToken)
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// Middleware gates session-protected routes: it accepts a request if
// authDisabled is set (dev/test only), or if the animedb_session cookie (or
// a `?token=` query fallback, used by the streaming endpoint for players
// that can't set headers) matches the persisted session token.
func Middleware(s *store.Store, authDisabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authDisabled {
				next.ServeHTTP(w, r)
				return
			}

			token := tokenFromRequest(r)
			if token == "" {
				http.Error(w, `{"error":"missing session"}`, http.StatusUnauthorized)
				return
			}
			stored, exists, err := s.GetSetting(store.SettingSessionToken)
			if err != nil {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if !exists || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
				http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}

// SetCookie writes the session cookie for a successful login response.
func SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie clears the session cookie on logout.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
