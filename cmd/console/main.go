// Castle Console - realtime client inbox for the messaging API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "console",
	Short: "Realtime client inbox for the messaging API",
	Long: `console keeps a live roster of clients and their conversations in sync
with the messaging API. It serves the inbox to browsers (serve, the
default) or renders it in the terminal (tui).`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd, tuiCmd, loginCmd, logoutCmd, whoamiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
