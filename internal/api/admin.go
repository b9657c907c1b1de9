package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/templates"
	"github.com/go-chi/chi/v5"
)

// RegisterAdminRoutes registers the template admin endpoints. Callers
// mount them behind the session and admin middleware.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/rules", h.ListRules)
		r.Post("/templates", h.CreateTemplate)
		r.Put("/templates/{id}", h.UpdateTemplate)
		r.Delete("/templates/{id}", h.DeleteTemplate)
		r.Post("/templates/{id}/toggle", h.ToggleTemplate)
	})
}

type stepView struct {
	domain.Template
	Delay string `json:"delay_label"`
}

type ruleView struct {
	templates.Rule
	Title string     `json:"title"`
	Steps []stepView `json:"steps"`
}

// ListRules loads the templates and returns them grouped into rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Load(r.Context()); err != nil {
		upstreamError(w, r, err)
		return
	}
	active, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	rules := h.admin.Rules(templates.Filter{Query: r.URL.Query().Get("q"), ActiveOnly: active})

	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		v := ruleView{Rule: rule, Title: rule.Title(), Steps: make([]stepView, 0, len(rule.Steps))}
		for _, s := range rule.Steps {
			v.Steps = append(v.Steps, stepView{Template: s, Delay: templates.FormatDelay(s.DelayHours)})
		}
		views = append(views, v)
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"rules":   views,
		"options": h.admin.Options(),
	})
}

// CreateTemplate adds a step.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if !decode(w, r, &t) {
		return
	}
	created, err := h.admin.Create(r.Context(), t)
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, created)
}

// UpdateTemplate replaces a step.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}
	var t domain.Template
	if !decode(w, r, &t) {
		return
	}
	t.ID = id
	if err := h.admin.Update(r.Context(), t); err != nil {
		upstreamError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, t)
}

// DeleteTemplate removes a step.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}
	if err := h.admin.Delete(r.Context(), id); err != nil {
		upstreamError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleTemplate flips a step's active flag.
func (h *Handler) ToggleTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}
	active, err := h.admin.Toggle(r.Context(), id)
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"id": id, "active": active})
}

func templateID(w http.ResponseWriter, r *http.Request) (domain.ID, bool) {
	id, err := domain.ParseID(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid template id")
		return 0, false
	}
	return id, true
}
