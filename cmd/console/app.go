package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/config"
	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/ashureev/castle-console/internal/live"
	"github.com/ashureev/castle-console/internal/metrics"
	"github.com/ashureev/castle-console/internal/realtime"
	"github.com/ashureev/castle-console/internal/session"
	"github.com/ashureev/castle-console/internal/store"
	"github.com/ashureev/castle-console/internal/templates"
	"github.com/joho/godotenv"
)

// app holds the wired console components.
type app struct {
	cfg      *config.Config
	repo     store.Repository
	sessions *session.Manager
	client   *backend.Client
	metrics  *metrics.Metrics
	inbox    *inbox.Inbox
	admin    *templates.Admin
	channel  *realtime.Channel
	hub      *live.Hub

	base context.Context
	mu   sync.Mutex
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// setupLogging installs the JSON logger. Output goes to w, or to the
// log file when w is nil.
func setupLogging(level slog.Level, w io.Writer, logFile string) (io.Closer, error) {
	var closer io.Closer
	if w == nil {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closer, nil
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// newApp opens the store and wires every component. Sync starts on
// login and stops on logout; base bounds its lifetime.
func newApp(base context.Context, cfg *config.Config) (*app, error) {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(base); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	m := metrics.New()
	sessions := session.NewManager(repo, nil)
	client := backend.New(backend.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		RPS:     cfg.UpstreamRPS,
		Tokens:  sessions,
	})
	sessions.SetAuthenticator(client)
	client.OnUnauthorized(sessions.ForceLogout)

	ib := inbox.New(client, inbox.Options{FlashDuration: cfg.FlashDuration, Metrics: m})
	channel := realtime.New(realtime.Options{
		URL:            cfg.RealtimeURL(),
		Tokens:         sessions,
		BackoffMin:     cfg.Realtime.BackoffMin,
		BackoffMax:     cfg.Realtime.BackoffMax,
		OnUnauthorized: sessions.ForceLogout,
		Metrics:        m,
	}, ib.HandleEvent)

	a := &app{
		cfg:      cfg,
		repo:     repo,
		sessions: sessions,
		client:   client,
		metrics:  m,
		inbox:    ib,
		admin:    templates.NewAdmin(client),
		channel:  channel,
		hub:      live.NewHub(m),
		base:     base,
	}
	sessions.Subscribe(a.onSessionEvent)
	return a, nil
}

func (a *app) onSessionEvent(ev session.Event) {
	switch ev {
	case session.LoggedIn:
		a.startSync()
	case session.LoggedOut:
		a.stopSync()
		a.inbox.Reset()
		a.hub.CloseAll("logged out")
	}
}

// startSync runs the roster refresher and the realtime channel for the
// current session.
func (a *app) startSync() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		a.stop()
	}
	ctx, cancel := context.WithCancel(a.base)
	a.stop = cancel

	a.inbox.StartRefresher(ctx, a.cfg.RefreshInterval)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.channel.Run(ctx); err != nil {
			slog.Warn("Realtime channel stopped", "error", err)
		}
	}()
	slog.Info("Inbox sync started", "refresh_interval", a.cfg.RefreshInterval)
}

func (a *app) stopSync() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		a.stop()
		a.stop = nil
		slog.Info("Inbox sync stopped")
	}
}

// restore resumes a persisted session, which starts sync.
func (a *app) restore() {
	s, err := a.sessions.Restore(a.base)
	switch {
	case err != nil:
		slog.Error("Failed to restore session", "error", err)
	case s == nil:
		slog.Info("No active session, log in to start syncing")
	}
}

func (a *app) close() {
	a.stopSync()
	a.wg.Wait()
	a.hub.CloseAll("shutting down")
	if err := a.repo.Close(); err != nil {
		slog.Error("Failed to close repository", "error", err)
	}
}
