package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/castle-console/internal/domain"
)

// ErrNotFound is returned for a step id that is not loaded.
var ErrNotFound = errors.New("template not found")

// Upstream is the template part of the backend API.
type Upstream interface {
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	CreateTemplate(ctx context.Context, t domain.Template) (domain.ID, error)
	UpdateTemplate(ctx context.Context, t domain.Template) error
	DeleteTemplate(ctx context.Context, id domain.ID) error
}

// Admin keeps the loaded steps and applies mutations to them.
type Admin struct {
	api Upstream

	mu    sync.Mutex
	steps []domain.Template
}

// NewAdmin creates an Admin with nothing loaded.
func NewAdmin(api Upstream) *Admin {
	return &Admin{api: api}
}

// Load replaces the local steps with the upstream list.
func (a *Admin) Load(ctx context.Context) error {
	list, err := a.api.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	a.mu.Lock()
	a.steps = list
	a.mu.Unlock()
	slog.Debug("Templates loaded", "count", len(list))
	return nil
}

// Rules groups the loaded steps passing f.
func (a *Admin) Rules(f Filter) []Rule {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Group(f.Apply(a.steps))
}

// Options returns the distinct classification values of every step.
func (a *Admin) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Distinct(a.steps)
}

// step returns a copy of the step with id.
func (a *Admin) step(id domain.ID) (domain.Template, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.indexLocked(id)
	if idx < 0 {
		return domain.Template{}, false
	}
	return a.steps[idx], true
}

// Create adds a step upstream and then locally. When the upstream does
// not report the new id the list is reloaded instead.
func (a *Admin) Create(ctx context.Context, t domain.Template) (domain.Template, error) {
	t.Normalize()
	id, err := a.api.CreateTemplate(ctx, t)
	if err != nil {
		return domain.Template{}, fmt.Errorf("create template: %w", err)
	}
	if id == 0 {
		slog.Warn("Template created without id, reloading")
		if err := a.Load(ctx); err != nil {
			return domain.Template{}, err
		}
		return t, nil
	}
	t.ID = id

	a.mu.Lock()
	a.steps = append([]domain.Template{t}, a.steps...)
	a.mu.Unlock()
	slog.Info("Template created", "template_id", id)
	return t, nil
}

// Update replaces a step upstream and then locally.
func (a *Admin) Update(ctx context.Context, t domain.Template) error {
	t.Normalize()
	if err := a.api.UpdateTemplate(ctx, t); err != nil {
		return fmt.Errorf("update template %s: %w", t.ID, err)
	}
	a.mu.Lock()
	if idx := a.indexLocked(t.ID); idx >= 0 {
		a.steps[idx] = t
	}
	a.mu.Unlock()
	slog.Info("Template updated", "template_id", t.ID)
	return nil
}

// Delete removes a step upstream and then locally.
func (a *Admin) Delete(ctx context.Context, id domain.ID) error {
	if err := a.api.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	a.mu.Lock()
	if idx := a.indexLocked(id); idx >= 0 {
		a.steps = append(a.steps[:idx], a.steps[idx+1:]...)
	}
	a.mu.Unlock()
	slog.Info("Template deleted", "template_id", id)
	return nil
}

// Toggle flips a step's active flag. The local flag changes before the
// request; on failure only that flag is restored.
func (a *Admin) Toggle(ctx context.Context, id domain.ID) (bool, error) {
	a.mu.Lock()
	idx := a.indexLocked(id)
	if idx < 0 {
		a.mu.Unlock()
		return false, fmt.Errorf("toggle template %s: %w", id, ErrNotFound)
	}
	prev := a.steps[idx].Active
	a.steps[idx].Active = !prev
	next := a.steps[idx]
	a.mu.Unlock()

	if err := a.api.UpdateTemplate(ctx, next); err != nil {
		a.mu.Lock()
		if idx := a.indexLocked(id); idx >= 0 {
			a.steps[idx].Active = prev
		}
		a.mu.Unlock()
		return bool(prev), fmt.Errorf("toggle template %s: %w", id, err)
	}
	slog.Info("Template toggled", "template_id", id, "active", bool(next.Active))
	return bool(next.Active), nil
}

func (a *Admin) indexLocked(id domain.ID) int {
	for i := range a.steps {
		if a.steps[i].ID == id {
			return i
		}
	}
	return -1
}
