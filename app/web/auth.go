package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	log "github.com/go-pkgz/lgr"
)

const (
	authCookie  = "jobdiary-auth"
	authUser    = "jobdiary" // username for basic auth of api clients
	maxSessions = 10000
)

// loginData is the login page
type loginData struct {
	TemplateData
	Error string
}

// handleLoginForm displays the login form
func (s *Server) handleLoginForm(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "login.html", loginData{TemplateData: s.newTemplateData("Login")})
}

// handleLogin processes the login form submission
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	password := r.FormValue("password")
	if password == "" {
		s.renderLoginError(w, "Password is required")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		log.Printf("[INFO] failed login from %s", r.RemoteAddr)
		s.renderLoginError(w, "Invalid password")
		return
	}

	token, err := s.createSession()
	if err != nil {
		log.Printf("[ERROR] failed to create session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     s.cookiePath(),
		MaxAge:   int(s.loginTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})
	http.Redirect(w, r, s.url("/"), http.StatusSeeOther)
}

// handleLogout drops the session and clears the auth cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(authCookie); err == nil {
		s.sessionsMu.Lock()
		delete(s.sessions, cookie.Value)
		s.sessionsMu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     s.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})
	http.Redirect(w, r, s.url("/login"), http.StatusSeeOther)
}

// renderLoginError renders the login form with an error message
func (s *Server) renderLoginError(w http.ResponseWriter, msg string) {
	s.render(w, http.StatusUnauthorized, "login.html", loginData{TemplateData: s.newTemplateData("Login"), Error: msg})
}

// authMiddleware checks for a session cookie or falls back to basic auth
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// skip auth for login page and static resources
		if r.URL.Path == "/login" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		if cookie, err := r.Cookie(authCookie); err == nil && s.validateSession(cookie.Value) {
			next.ServeHTTP(w, r)
			return
		}

		// fallback to basic auth for API clients
		if username, password, ok := r.BasicAuth(); ok && username == authUser {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		if r.Header.Get("Accept") == "" || strings.Contains(r.Header.Get("Accept"), "text/html") {
			http.Redirect(w, r, s.url("/login"), http.StatusSeeOther)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="Job Diary"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// createSession makes a new random session token. Expired sessions are purged,
// and the oldest one is dropped when the limit is reached.
func (s *Server) createSession() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	token := id.String()

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	now := time.Now()
	var oldestToken string
	var oldest time.Time
	for t, sess := range s.sessions {
		if now.Sub(sess.createdAt) > s.loginTTL {
			delete(s.sessions, t)
			continue
		}
		if oldestToken == "" || sess.createdAt.Before(oldest) {
			oldestToken, oldest = t, sess.createdAt
		}
	}
	if len(s.sessions) >= maxSessions && oldestToken != "" {
		delete(s.sessions, oldestToken)
	}

	s.sessions[token] = session{createdAt: now}
	return token, nil
}

// validateSession checks the token is a known session within login TTL, expired session removed
func (s *Server) validateSession(token string) bool {
	if token == "" {
		return false
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	if time.Since(sess.createdAt) > s.loginTTL {
		delete(s.sessions, token)
		return false
	}
	return true
}
