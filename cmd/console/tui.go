package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/ashureev/castle-console/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the inbox in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The screen belongs to the TUI; logs go to the file.
	logCloser, err := setupLogging(cfg.LogLevel, nil, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.restore()
	s := a.sessions.Current()
	if s == nil {
		return errors.New("not logged in, run `console login` first")
	}
	a.sessions.Watch(ctx, cfg.SessionPoll)

	f, key, err := inbox.LoadView(ctx, a.repo)
	if err != nil {
		slog.Warn("Failed to load roster view", "error", err)
	}
	if err := a.inbox.Refresh(ctx); err != nil {
		slog.Warn("Initial roster refresh failed", "error", err)
	}

	final, err := tui.Run(ctx, a.inbox, tui.Options{
		Realtime: a.channel.State,
		Username: s.Username,
		Filter:   f,
		Sort:     key,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}

	f, key = final.ViewState()
	if err := inbox.SaveView(context.Background(), a.repo, f, key); err != nil {
		slog.Warn("Failed to save roster view", "error", err)
	}
	if final.LoggedOut() {
		fmt.Fprintln(cmd.ErrOrStderr(), "Session ended. Run `console login` to sign in again.")
	}
	return nil
}
