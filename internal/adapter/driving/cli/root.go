// Package cli implements the cobra command tree: the serve command that hosts
// the web panel and relay, and terminal commands over the same key store.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "keyquota",
	Short: "Store API keys and track their character quota",
	Long: `keyquota keeps translation API keys in an encrypted local store, checks each
key's character usage through a relay and shows the totals in a web panel or
in the terminal.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		configureLogging(cmd.ErrOrStderr(), cmd.Name() == "serve")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree with the given build version.
func Execute(ctx context.Context, buildVersion string) error {
	if buildVersion != "" {
		version = buildVersion
	}
	rootCmd.Version = version
	return rootCmd.ExecuteContext(ctx)
}

// configureLogging installs the default slog handler. Terminal commands only
// surface warnings unless --verbose is set; the server logs at info.
func configureLogging(w io.Writer, server bool) {
	level := slog.LevelWarn
	if server {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
