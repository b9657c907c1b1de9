package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ashureev/castle-console/internal/backend"
	"github.com/ashureev/castle-console/internal/session"
	"github.com/ashureev/castle-console/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginUser     string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Sign in and store the session locally",
	Long: `Sign in against the messaging API and store the session in the local
database. A running serve or tui process picks up the new session within
SESSION_POLL_INTERVAL (default 5s). The tui exits when its session is
replaced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Long: `Delete the stored session. A running server notices within
SESSION_POLL_INTERVAL (default 5s), stops syncing and closes its browser
connections. An open tui exits.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "username (prompted when empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted without echo when empty)")
}

// openSessions builds a session manager over the local store without
// starting any sync.
func openSessions() (*session.Manager, store.Repository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if _, err := setupLogging(cfg.LogLevel, os.Stderr, ""); err != nil {
		return nil, nil, err
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	sessions := session.NewManager(repo, nil)
	sessions.SetAuthenticator(backend.New(backend.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		RPS:     cfg.UpstreamRPS,
		Tokens:  sessions,
	}))
	return sessions, repo, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		loginUser = args[0]
	}
	sessions, repo, err := openSessions()
	if err != nil {
		return err
	}
	defer repo.Close()

	in := bufio.NewReader(cmd.InOrStdin())
	if loginUser == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read username: %w", err)
		}
		loginUser = strings.TrimSpace(line)
	}
	if loginPassword == "" {
		loginPassword, err = readPassword(cmd, in)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	s, err := sessions.Login(ctx, loginUser, loginPassword)
	if errors.Is(err, backend.ErrUnauthorized) {
		return errors.New("invalid credentials")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", s.Username, s.Role)
	return nil
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise.
func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	sessions, repo, err := openSessions()
	if err != nil {
		return err
	}
	defer repo.Close()

	if _, err := sessions.Restore(cmd.Context()); err != nil {
		return err
	}
	if err := sessions.Logout(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	sessions, repo, err := openSessions()
	if err != nil {
		return err
	}
	defer repo.Close()

	s, err := sessions.Restore(cmd.Context())
	if err != nil {
		return err
	}
	if s == nil {
		return errors.New("not logged in")
	}
	expiry := "no expiry"
	if !s.ExpiresAt.IsZero() {
		expiry = "expires " + s.ExpiresAt.Local().Format(time.RFC1123)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), %s\n", s.Username, s.Role, expiry)
	return nil
}
