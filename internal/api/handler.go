// Package api provides HTTP handlers for the console server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/ashureev/castle-console/internal/middleware"
	"github.com/ashureev/castle-console/internal/realtime"
	"github.com/ashureev/castle-console/internal/session"
	"github.com/ashureev/castle-console/internal/store"
	"github.com/ashureev/castle-console/internal/templates"
)

// maxRequestBodySize caps JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

// RealtimeState reports the upstream push channel state.
type RealtimeState interface {
	State() realtime.State
}

// ClientEditor writes client records upstream.
type ClientEditor interface {
	CreateClient(ctx context.Context, in domain.ClientInput) (*domain.Client, error)
	UpdateClient(ctx context.Context, id domain.ID, in domain.ClientInput) (*domain.Client, error)
	DeleteClient(ctx context.Context, id domain.ID) error
}

// Handler provides common handler utilities and dependencies.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	inbox    *inbox.Inbox
	clients  ClientEditor
	admin    *templates.Admin
	realtime RealtimeState
}

// NewHandler creates a new Handler with common dependencies. rt may be
// nil while no channel is running.
func NewHandler(repo store.Repository, sessions *session.Manager, ib *inbox.Inbox, clients ClientEditor, admin *templates.Admin, rt RealtimeState) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		inbox:    ib,
		clients:  clients,
		admin:    admin,
		realtime: rt,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// upstreamError maps an error onto the local API's categories:
// authentication, validation, missing resources and upstream failures.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		JSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "session expired",
			"redirect": middleware.LoginPath,
		})
	case errors.Is(err, backend.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, templates.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Upstream request failed", "path", r.URL.Path, "error", err)
		Error(w, http.StatusBadGateway, err.Error())
	}
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
