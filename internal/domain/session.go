package domain

import "time"

// Session roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Session is an authenticated agent session against the upstream API.
type Session struct {
	Token     string    `json:"-"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the session may manage templates.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// Expired reports whether the session has a known expiry in the past.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TTL returns the time until the session expires.
// Returns 0 if it has expired or has no known expiry.
func (s *Session) TTL(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
