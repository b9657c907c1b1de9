package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/domain"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionView is the public shape of a session.
type sessionView struct {
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	IsAdmin    bool      `json:"is_admin"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	TTLSeconds int64     `json:"ttl_seconds,omitempty"`
}

func viewOf(s *domain.Session) sessionView {
	return sessionView{
		Username:   s.Username,
		Role:       s.Role,
		IsAdmin:    s.IsAdmin(),
		ExpiresAt:  s.ExpiresAt,
		TTLSeconds: int64(s.TTL(time.Now()).Seconds()),
	}
}

// RegisterSessionRoutes registers the session endpoints. They are
// reachable without a session.
func (h *Handler) RegisterSessionRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

// GetSession returns the current session or 401.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	s := h.sessions.Current()
	if s == nil {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in", "redirect": "/login"})
		return
	}
	JSON(w, http.StatusOK, viewOf(s))
}

// Login exchanges credentials with the upstream.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.Warn("Login failed", "username", req.Username, "error", err)
		if errors.Is(err, backend.ErrUnauthorized) {
			Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		upstreamError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(s))
}

// Logout ends the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		slog.Error("Logout failed", "error", err)
		Error(w, http.StatusInternalServerError, "logout failed")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "logged_out", "redirect": "/login"})
}
