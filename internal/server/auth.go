package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stackops/stackops/internal/config"
)

const (
	sessionCookieName = "stackops-session"
	sessionMaxAge     = 24 * time.Hour
)

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]time.Time), now: time.Now}
}

func (st *sessionStore) create() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	st.mu.Lock()
	st.sessions[token] = st.now().Add(sessionMaxAge)
	st.mu.Unlock()
	return token, nil
}

// valid reports whether token is live, dropping it if it has expired.
func (st *sessionStore) valid(token string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	expires, ok := st.sessions[token]
	if ok && st.now().After(expires) {
		delete(st.sessions, token)
		return false
	}
	return ok
}

func (st *sessionStore) remove(token string) {
	st.mu.Lock()
	delete(st.sessions, token)
	st.mu.Unlock()
}

// withAuth wraps a handler to require authentication (if auth is enabled).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.Mode == config.AuthModeNone {
			next(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !s.sessions.valid(cookie.Value) {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}

		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.PasswordHash), []byte(body.Password)); err != nil {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("failed login")
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := s.sessions.create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.remove(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	valid := false
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		valid = s.sessions.valid(cookie.Value)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": valid,
		"auth_required": s.cfg.Auth.Mode == config.AuthModePassword,
	})
}
