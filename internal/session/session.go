// Package session owns the agent's authenticated session: the explicit
// login/logout lifecycle, persistence across restarts, and the bearer
// token handed to every upstream collaborator.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/store"
	"github.com/golang-jwt/jwt/v4"
)

// ErrNoSession is returned when an operation needs a logged-in agent.
var ErrNoSession = errors.New("no active session")

// Event is a lifecycle transition.
type Event int

const (
	LoggedIn Event = iota
	LoggedOut
)

func (e Event) String() string {
	if e == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResponse, error)
}

// Manager holds the current session. It implements backend.TokenSource.
type Manager struct {
	repo store.Repository
	auth Authenticator
	now  func() time.Time

	mu        sync.RWMutex
	current   *domain.Session
	listeners []func(Event)
}

// NewManager creates a session manager with no active session.
func NewManager(repo store.Repository, auth Authenticator) *Manager {
	return &Manager{repo: repo, auth: auth, now: time.Now}
}

// SetAuthenticator wires the login backend after construction, which
// breaks the cycle between the backend client (needs a token source)
// and the manager (needs a login call).
func (m *Manager) SetAuthenticator(auth Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = auth
}

// Subscribe registers fn for lifecycle transitions. Listeners run
// synchronously after the state change, outside the manager lock.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Restore loads a persisted session. An expired one is discarded.
func (m *Manager) Restore(ctx context.Context) (*domain.Session, error) {
	s, err := m.repo.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	if s.Expired(m.now()) {
		slog.Info("Persisted session expired, discarding", "username", s.Username, "expired_at", s.ExpiresAt)
		if err := m.repo.DeleteSession(ctx); err != nil {
			return nil, fmt.Errorf("discard expired session: %w", err)
		}
		return nil, nil
	}

	m.set(s)
	slog.Info("Session restored", "username", s.Username, "role", s.Role)
	m.notify(LoggedIn)
	return m.Current(), nil
}

// Login authenticates against the upstream and persists the session.
func (m *Manager) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	m.mu.RLock()
	auth := m.auth
	m.mu.RUnlock()
	if auth == nil {
		return nil, fmt.Errorf("login: no authenticator configured")
	}

	resp, err := auth.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s := &domain.Session{
		Token:     resp.Token,
		Username:  resp.Username,
		Role:      normalizeRole(resp.Role),
		ExpiresAt: expiryFromToken(resp.Token),
		CreatedAt: m.now(),
	}
	if err := m.repo.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.set(s)
	slog.Info("Logged in", "username", s.Username, "role", s.Role, "expires_at", s.ExpiresAt)
	m.notify(LoggedIn)
	return m.Current(), nil
}

// Logout clears the session locally and in the store. Logging out with
// no session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	had := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if err := m.repo.DeleteSession(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if had {
		slog.Info("Logged out")
		m.notify(LoggedOut)
	}
	return nil
}

// ForceLogout is the reaction to an upstream 401/403.
func (m *Manager) ForceLogout() {
	if m.Current() == nil {
		return
	}
	slog.Warn("Upstream rejected credentials, forcing logout")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Logout(ctx); err != nil {
		slog.Error("Forced logout failed", "error", err)
	}
}

// Reload reconciles the active session with the store, which another
// process (the login and logout commands) may have changed. A removed or
// expired session logs out; a different stored token replaces the active
// one, passing through LoggedOut so state of the old session is dropped.
// It reports whether anything changed.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	stored, err := m.repo.GetSession(ctx)
	if err != nil {
		return false, fmt.Errorf("reload session: %w", err)
	}
	if stored != nil && stored.Expired(m.now()) {
		stored = nil
	}

	m.mu.Lock()
	cur := m.current
	switch {
	case cur == nil && stored == nil:
		m.mu.Unlock()
		return false, nil
	case cur != nil && stored != nil && cur.Token == stored.Token:
		m.mu.Unlock()
		return false, nil
	}
	m.current = nil
	m.mu.Unlock()

	if cur != nil {
		slog.Info("Stored session removed or replaced, logging out", "username", cur.Username)
		m.notify(LoggedOut)
	}
	if stored != nil {
		m.set(stored)
		slog.Info("Adopted stored session", "username", stored.Username, "role", stored.Role)
		m.notify(LoggedIn)
	}
	return true, nil
}

// Watch calls Reload every interval until ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := m.Reload(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("Session reload failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// Token implements backend.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

func (m *Manager) set(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	listeners := make([]func(Event), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func normalizeRole(role string) string {
	if role == domain.RoleAdmin {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

// expiryFromToken reads the exp claim of a JWT without verifying it. The
// upstream is the authority; the console only uses exp to skip restoring
// a session that is certain to be rejected. Opaque tokens have no expiry.
func expiryFromToken(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
