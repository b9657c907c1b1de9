package session

import (
	"context"

	"github.com/ashureev/castle-console/internal/domain"
)

type contextKey int

const sessionKey contextKey = iota

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext extracts the session from the request context.
func FromContext(ctx context.Context) *domain.Session {
	if v, ok := ctx.Value(sessionKey).(*domain.Session); ok {
		return v
	}
	return nil
}
