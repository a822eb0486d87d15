// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/invowk/lifespan/internal/config"
	"github.com/invowk/lifespan/internal/host"
	"github.com/invowk/lifespan/internal/issue"
	"github.com/invowk/lifespan/internal/logging"
	"github.com/invowk/lifespan/internal/metrics"
	"github.com/invowk/lifespan/internal/visits"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	host string
	port int
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the service and run until interrupted",
		Long: `Start the service and run until interrupted.

Startup opens the visits database. The listener answers /healthz and /readyz
from the moment it opens; application routes return 503 until startup
completes and again once shutdown begins. On SIGINT or SIGTERM in-flight
requests drain (bounded by lifespan.shutdown_timeout) before resources are
released. Handlers still running after that keep their resources until they
return, unless lifespan.force_teardown_after bounds the wait.

Exit codes: 0 on clean stop (teardown errors are reported as warnings),
2 on configuration errors, 3 when startup fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}

	serveCmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides server.port)")

	return serveCmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := loadServeConfig(cmd, root, opts)
	if err != nil {
		reportError(stderr, "Configuration error:", err, root.verbose)
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	logger, err := logging.New(stderr, cfg.Log)
	if err != nil {
		reportError(stderr, "Configuration error:", err, root.verbose)
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	srv := buildServer(cfg, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return classifyServeError(stderr, srv.Run(ctx), root.verbose)
}

// loadServeConfig loads the configuration and applies flag overrides.
func loadServeConfig(cmd *cobra.Command, root *rootOptions, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.NewProvider().Load(cmd.Context(), root.loadOptions())
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = config.Port(opts.port)
		if ok, errs := cfg.Server.Port.IsValid(); !ok {
			return nil, errors.Join(errs...)
		}
	}
	return cfg, nil
}

// buildServer wires the visits service, coordinator, metrics and host.
func buildServer(cfg *config.Config, logger *log.Logger) *host.Server {
	var (
		reg *prometheus.Registry
		m   *metrics.Lifespan
	)
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		m = metrics.New(reg)
	}

	svc := visits.New(cfg.Database.Path.String(),
		visits.WithLogger(logging.Named(logger, "visits")),
	)

	coord := lifespan.New(svc,
		lifespan.WithLogger(logging.Named(logger, "lifespan")),
		lifespan.WithStartupTimeout(cfg.Lifespan.StartupTimeout.Value()),
		lifespan.WithTeardownTimeout(cfg.Lifespan.TeardownTimeout.Value()),
		lifespan.WithShape(visits.Shape()),
		lifespan.WithObserver(logging.PhaseObserver(logging.Named(logger, "phase"))),
		lifespan.WithObserver(m.Observer()),
	)

	return host.New(coord, host.Config{
		Host:               cfg.Server.Host,
		Port:               int(cfg.Server.Port),
		ReadHeaderTimeout:  cfg.Server.ReadHeaderTimeout.Value(),
		ShutdownTimeout:    cfg.Lifespan.ShutdownTimeout.Value(),
		ForceTeardownAfter: cfg.Lifespan.ForceTeardownAfter.Value(),
		MetricsPath:        cfg.Metrics.Path.String(),
		Registry:           reg,
		Metrics:            m,
		Logger:             logging.Named(logger, "host"),
	}, svc.Routes)
}

// classifyServeError maps the outcome of a serve run to an exit code.
// Startup failures are fatal; drain timeouts and teardown errors only warn.
func classifyServeError(w io.Writer, err error, verbose bool) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, lifespan.ErrStartup), errors.Is(err, host.ErrAddressInUse):
		reportError(w, "Startup failed:", err, verbose)
		return &ExitError{Code: ExitStartupFailed, Err: err}
	case errors.Is(err, lifespan.ErrTeardown), errors.Is(err, lifespan.ErrDrainTimeout):
		fmt.Fprintln(w, WarningStyle.Render("Warning:")+" "+formatErrorForDisplay(err, verbose))
		if errors.Is(err, lifespan.ErrDrainTimeout) {
			renderIssue(w, issue.DrainTimeoutId)
		}
		if errors.Is(err, lifespan.ErrTeardown) {
			renderIssue(w, issue.TeardownFailedId)
		}
		return nil
	default:
		reportError(w, "Error:", err, verbose)
		return &ExitError{Code: ExitFailure, Err: err}
	}
}
