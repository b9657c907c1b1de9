package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/castle-console/internal/api"
	"github.com/ashureev/castle-console/internal/live"
	"github.com/ashureev/castle-console/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the inbox to browsers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg.LogLevel, os.Stdout, ""); err != nil {
		return err
	}
	slog.Info("Starting console server", "port", cfg.Port, "api", cfg.APIBaseURL, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	h := api.NewHandler(a.repo, a.sessions, a.inbox, a.client, a.admin, a.channel)
	router := api.NewRouter(h, api.RouterDeps{
		AllowedOrigins: cfg.AllowedOrigins(),
		Metrics:        a.metrics.Handler(),
		Live:           live.NewHandler(a.inbox, a.hub, cfg.FrontendURL, cfg.IsDevelopment()),
		SPA:            web.SPAHandler(),
	})

	// Websocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	a.restore()
	// Pick up login and logout commands run while the server is up.
	a.sessions.Watch(ctx, cfg.SessionPoll)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
