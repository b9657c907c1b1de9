// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/castle-console/internal/domain"
)

// Preference keys persisted between runs.
const (
	PrefSortKey = "roster.sort"
	PrefFilter  = "roster.filter"
)

// Repository defines the interface for persisting console-local state.
type Repository interface {
	// GetSession retrieves the persisted session, or nil if none is stored.
	GetSession(ctx context.Context) (*domain.Session, error)

	// SaveSession replaces the persisted session.
	SaveSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes the persisted session. Deleting when none is
	// stored is not an error.
	DeleteSession(ctx context.Context) error

	// GetPreference returns a stored preference and whether it was present.
	GetPreference(ctx context.Context, key string) (string, bool, error)

	// SetPreference creates or updates a preference.
	SetPreference(ctx context.Context, key, value string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
