package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// CLI represents the reviewer-recommender command line interface.
type CLI struct {
	rootCmd *cobra.Command
	out     io.Writer
	errOut  io.Writer
	opts    rootOptions
}

type rootOptions struct {
	configPath   string
	settingsPath string
	verbose      bool
	json         bool
}

// New creates a CLI writing results to out and logs to errOut.
func New(out, errOut io.Writer) *CLI {
	c := &CLI{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "reviewer-recommender",
		Short:         "Suggest and request pull request reviewers from recent review history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(c.errOut, c.opts.verbose, false)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.opts.configPath, "config", "", "Path to config.yaml (default: user config dir)")
	flags.StringVar(&c.opts.settingsPath, "settings", "", "Path to the settings file holding the PAT (default: user config dir)")
	flags.BoolVarP(&c.opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&c.opts.json, "json", false, "Print raw JSON responses")

	rootCmd.AddCommand(c.newSuggestCmd())
	rootCmd.AddCommand(c.newPRCmd())
	rootCmd.AddCommand(c.newRequestCmd())
	rootCmd.AddCommand(c.newRequestAllCmd())
	rootCmd.AddCommand(c.newTokenCmd())
	rootCmd.AddCommand(c.newServeCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// setupLogging installs the default slog logger. The service logs JSON,
// interactive commands log text.
func setupLogging(w io.Writer, verbose, json bool) {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case json:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if json {
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
}
