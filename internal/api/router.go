package api

import (
	"net/http"

	"github.com/ashureev/castle-console/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps are the extra handlers mounted by NewRouter.
type RouterDeps struct {
	AllowedOrigins []string
	Metrics        http.Handler
	Live           http.Handler
	SPA            http.Handler
}

// NewRouter assembles the console routes.
func NewRouter(h *Handler, deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(deps.AllowedOrigins))

	// Public routes.
	h.RegisterHealth(r)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	h.RegisterSessionRoutes(r)

	// Session-only routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.sessions))
		h.RegisterInboxRoutes(r)
		if deps.Live != nil {
			r.Get("/ws/inbox", deps.Live.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			h.RegisterAdminRoutes(r)
		})
	})

	// Serve embedded frontend (SPA catch-all).
	if deps.SPA != nil {
		r.Handle("/*", deps.SPA)
	}
	return r
}
