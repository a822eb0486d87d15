// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/invowk/lifespan/internal/config"
	"github.com/invowk/lifespan/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configFile string
	verbose    bool
}

// loadOptions maps the --config flag onto config.LoadOptions.
func (o *rootOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: o.configFile}
}

// NewRootCommand builds the lifespand command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "lifespand",
		Short: "Run a service with a managed startup and shutdown lifespan",
		Long: TitleStyle.Render("lifespand") + SubtitleStyle.Render(" - a service with a managed lifespan") + `

lifespand acquires its resources once at startup, serves requests only while
they are available, drains in-flight work on shutdown, and releases
everything it acquired in reverse order.

` + SubtitleStyle.Render("Examples:") + `
  lifespand serve              Start the service
  lifespand serve --port 9090  Start on another port
  lifespand status             Probe a running instance
  lifespand config show        Show the effective configuration`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/lifespan/config.cue)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "show full error chains")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newStatusCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "lifespand "+getVersionString())
		},
	}
}

// Execute runs the root command and exits with the code carried by an
// ExitError, or 1 for any other error.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors render with their suggestions; verbose adds the chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
