package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/metrics"
	"github.com/coder/websocket"
)

const (
	defaultBackoffMin  = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
	defaultStableAfter = 10 * time.Second
	readLimit          = 1 << 20
)

// Handler receives every decoded message event.
type Handler func(domain.Message)

// State is a snapshot of the connection.
type State struct {
	Connected bool      `json:"connected"`
	Attempts  int       `json:"attempts"`
	Since     time.Time `json:"since,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Options configures a Channel.
type Options struct {
	URL         string
	Tokens      backend.TokenSource
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	StableAfter time.Duration
	// OnUnauthorized runs when the upgrade is rejected with 401/403.
	OnUnauthorized func()
	Metrics        *metrics.Metrics
	HTTPClient     *http.Client
}

// Channel is a self-healing subscription to the upstream push socket.
type Channel struct {
	opts   Options
	handle Handler

	mu    sync.RWMutex
	state State
}

// New creates a Channel. Call Run to connect.
func New(opts Options, handle Handler) *Channel {
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = defaultBackoffMin
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if opts.Tokens == nil {
		opts.Tokens = backend.StaticToken("")
	}
	return &Channel{opts: opts, handle: handle}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run connects and reconnects until ctx is done or the upstream rejects
// the token. It returns nil on cancellation and backend.ErrUnauthorized
// on rejection.
func (c *Channel) Run(ctx context.Context) error {
	slog.Info("Realtime channel starting", "url", c.opts.URL)
	attempt := 0
	for {
		started := time.Now()
		err := c.session(ctx)
		c.setDisconnected(err)

		if ctx.Err() != nil {
			slog.Info("Realtime channel shutting down", "reason", ctx.Err())
			return nil
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			slog.Warn("Realtime channel rejected, stopping", "error", err)
			if c.opts.OnUnauthorized != nil {
				c.opts.OnUnauthorized()
			}
			return err
		}

		if time.Since(started) >= c.opts.StableAfter {
			attempt = 0
		}
		delay := c.backoff(attempt)
		attempt++
		c.mu.Lock()
		c.state.Attempts = attempt
		c.mu.Unlock()
		c.opts.Metrics.ObserveReconnect()

		slog.Warn("Realtime channel disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Realtime channel shutting down", "reason", ctx.Err())
			return nil
		case <-timer.C:
		}
	}
}

// backoff returns the jittered delay for an attempt: a random value in
// [d/2, d] where d doubles from BackoffMin up to BackoffMax.
func (c *Channel) backoff(attempt int) time.Duration {
	d := c.opts.BackoffMin
	for i := 0; i < attempt && d < c.opts.BackoffMax; i++ {
		d *= 2
	}
	if d > c.opts.BackoffMax {
		d = c.opts.BackoffMax
	}
	half := d / 2
	return half + rand.N(half+1)
}

func (c *Channel) session(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}
	token := c.opts.Tokens.Token()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("realtime upgrade: HTTP %d: %w", resp.StatusCode, backend.ErrUnauthorized)
		}
		return fmt.Errorf("realtime dial: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "client closing"); closeErr != nil {
			slog.Debug("Failed to close realtime socket", "error", closeErr)
		}
	}()
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.state.Connected = true
	c.state.Since = time.Now()
	c.state.LastError = ""
	c.mu.Unlock()
	c.opts.Metrics.SetConnected(true)
	slog.Info("Realtime channel connected", "url", c.opts.URL)

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return fmt.Errorf("realtime closed by upstream: %w", err)
			}
			return fmt.Errorf("realtime read: %w", err)
		}
		msg, ok := Decode(frame)
		if !ok {
			slog.Debug("Realtime frame ignored", "size", len(frame))
			continue
		}
		c.opts.Metrics.ObserveEvent(msg.IsInbound())
		if c.handle != nil {
			c.handle(msg)
		}
	}
}

func (c *Channel) dialURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	if token := c.opts.Tokens.Token(); token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Channel) setDisconnected(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Connected = false
	c.state.Since = time.Time{}
	if err != nil {
		c.state.LastError = err.Error()
	}
	c.opts.Metrics.SetConnected(false)
}
