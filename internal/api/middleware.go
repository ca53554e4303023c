package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	userIDKey    contextKey = "user_id"
)

// withSession guarantees every request carries a session id, creating an
// anonymous one when the cookie is missing. Anonymous sessions let the
// login page show flash messages before authentication.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if c, err := r.Cookie(s.cfg.Auth.CookieName); err == nil && c.Value != "" {
			sessionID = c.Value
		}
		if sessionID == "" {
			id, err := s.sessions.Create(r.Context())
			if err != nil {
				httputil.InternalError(w, err)
				return
			}
			sessionID = id
			s.setSessionCookie(w, sessionID)
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), sessionIDKey, sessionID)))
	})
}

// requireAdmin gates the /admin subtree. Unauthenticated requests bounce
// to the login page with an error flash.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFrom(r.Context())
		userID, found, err := s.sessions.UserID(r.Context(), sessionID)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		if !found {
			if err := s.sessions.SetFlash(r.Context(), sessionID, "You must be logged in to access the admin dashboard"); err != nil {
				logger.Warn("set login flash", "error", err.Error())
			}
			httputil.SeeOther(w, "/login")
			return
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.Auth.SessionTTL().Seconds()),
	})
}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

func userIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}
