package handler

import (
	"context"
	"net"
	"net/http"

	"botops-console/internal/models"
	"botops-console/internal/service"
)

type contextKey string

const (
	userContextKey    contextKey = "auth_user"
	sessionContextKey contextKey = "auth_session"
)

// SessionAuth gates protected routes on a valid session cookie and places
// the authenticated user and session on the request context.
type SessionAuth struct {
	auth       *service.AuthService
	cookieName string
}

func NewSessionAuth(auth *service.AuthService, cookieName string) *SessionAuth {
	return &SessionAuth{
		auth:       auth,
		cookieName: cookieName,
	}
}

// Require rejects requests without a valid session.
func (m *SessionAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r, m.cookieName)

		user, session, err := m.auth.VerifySession(r.Context(), token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin additionally restricts a route to admin users. It must be
// mounted inside Require.
func (m *SessionAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil || user.Role != models.RoleAdmin {
			respondWithError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the authenticated user, or nil outside Require.
func CurrentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userContextKey).(*models.User)
	return user
}

// CurrentSession returns the authenticated session, or nil outside Require.
func CurrentSession(r *http.Request) *models.Session {
	session, _ := r.Context().Value(sessionContextKey).(*models.Session)
	return session
}

func sessionToken(r *http.Request, cookieName string) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// sourceAddress extracts the client IP. middleware.RealIP has already
// resolved proxy headers into RemoteAddr.
func sourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
