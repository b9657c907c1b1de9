package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RegisterHealth registers GET /health.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health reports store reachability, session presence, the realtime
// channel state and the last roster refresh.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	dbStatus := "ok"
	if err := h.repo.Ping(ctx); err != nil {
		status, dbStatus = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":    status,
		"database":  dbStatus,
		"logged_in": h.sessions.Current() != nil,
	}
	if h.realtime != nil {
		body["realtime"] = h.realtime.State()
	}
	snap := h.inbox.Snapshot()
	if !snap.LastRefresh.IsZero() {
		body["last_refresh"] = snap.LastRefresh
	}
	if snap.RefreshError != "" {
		body["refresh_error"] = snap.RefreshError
	}
	JSON(w, code, body)
}
