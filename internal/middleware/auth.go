package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/session"
)

// LoginPath is where the browser is sent when no session exists.
const LoginPath = "/login"

// SessionSource reports the active session, or nil.
type SessionSource interface {
	Current() *domain.Session
}

// RequireSession rejects requests while no agent is logged in and
// injects the session into the request context otherwise.
func RequireSession(sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := sessions.Current()
			if s == nil {
				slog.Debug("Request without session", "path", r.URL.Path, "ip", IPFromRequest(r))
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":    "not logged in",
					"redirect": LoginPath,
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireAdmin rejects requests from non-admin sessions. It must run
// after RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromContext(r.Context())
		if !s.IsAdmin() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode middleware response", "error", err)
	}
}
