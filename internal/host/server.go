// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/invowk/lifespan/internal/issue"
	"github.com/invowk/lifespan/internal/metrics"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 5 * time.Second
	// DefaultShutdownTimeout bounds how long Stop waits for in-flight requests.
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"
)

var (
	// ErrServerStarted is returned by Start when the server was already started.
	ErrServerStarted = errors.New("server already started")
	// ErrAddressInUse is returned by Start when the listen address is taken.
	ErrAddressInUse = errors.New("address already in use")
)

type (
	// Config holds the server configuration.
	Config struct {
		// Host is the address to bind to.
		Host string
		// Port is the port to listen on. 0 picks a free port.
		Port int
		// ReadHeaderTimeout bounds header reads on each connection.
		ReadHeaderTimeout time.Duration
		// ShutdownTimeout bounds how long Stop waits for in-flight requests
		// before closing their connections.
		ShutdownTimeout time.Duration
		// ForceTeardownAfter bounds how long Stop keeps waiting for handlers
		// that are still running once their connections are closed. Zero
		// waits until the context passed to Stop is done.
		ForceTeardownAfter time.Duration
		// MetricsPath is where the registry is exposed.
		MetricsPath string
		// Registry, when set, is served at MetricsPath.
		Registry *prometheus.Registry
		// Metrics records admission decisions. Nil disables recording.
		Metrics *metrics.Lifespan
		// Logger receives request and server logs.
		Logger *log.Logger
	}

	// Routes mounts application routes behind admission.
	Routes func(r chi.Router)

	// Server hosts a lifespan.Coordinator behind an HTTP listener.
	Server struct {
		cfg     Config
		coord   *lifespan.Coordinator
		handler http.Handler
		logger  *log.Logger

		srv      *http.Server
		listener net.Listener
		addr     string

		started  atomic.Bool
		stopOnce sync.Once
		stopErr  error
		doneCh   chan struct{}
		errCh    chan error
	}
)

// DefaultConfig returns a config listening on an ephemeral localhost port.
func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              0,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		MetricsPath:       DefaultMetricsPath,
	}
}

// New creates a Server for coord. Zero config fields take their defaults.
func New(coord *lifespan.Coordinator, cfg Config, routes ...Routes) *Server {
	defaults := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = defaults.MetricsPath
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "host"})
	}

	s := &Server{
		cfg:    cfg,
		coord:  coord,
		logger: cfg.Logger,
		doneCh: make(chan struct{}),
		errCh:  make(chan error, 1),
	}
	s.handler = s.routes(routes)
	return s
}

// Handler returns the full router, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start opens the listener, begins serving probes, and runs the
// coordinator's startup. It returns once the coordinator is ready. If
// startup fails the listener is closed and the *lifespan.StartupError is
// returned.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.finish()
		if errors.Is(err, syscall.EADDRINUSE) {
			return issue.NewErrorContext().
				WithOperation("listen").
				WithResource(addr).
				WithSuggestion("Stop the process using the port or choose another one with --port").
				WithIssue(issue.AddressInUseId).
				Wrap(fmt.Errorf("%w: %w", ErrAddressInUse, err)).
				BuildError()
		}
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.addr = listener.Addr().String()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	s.logger.Info("listening", "address", s.addr)

	if err := s.coord.Start(ctx); err != nil {
		_ = s.srv.Close()
		_ = listener.Close()
		s.finish()
		return err
	}
	return nil
}

// Stop drains the coordinator and waits for in-flight requests up to the
// shutdown timeout before closing connections. Teardown then waits for any
// handler still running, until ctx is done or ForceTeardownAfter passes. A
// *lifespan.TeardownError or lifespan.ErrDrainTimeout in the result is
// non-fatal. Stop is idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Server) stop(ctx context.Context) error {
	defer s.finish()

	if s.srv == nil {
		// Never listened.
		return s.coord.Stop(ctx)
	}

	if s.coord.Drain() {
		s.logger.Info("draining", "in_flight", s.coord.InFlight())
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(drainCtx); err != nil {
		// Connections still open past the deadline are cut. Their handlers
		// may keep running, so resources stay up until they return.
		s.logger.Warn("shutdown deadline reached, closing connections", "error", err)
		_ = s.srv.Close()
	}

	idleCtx := ctx
	if s.cfg.ForceTeardownAfter > 0 {
		var cancelIdle context.CancelFunc
		idleCtx, cancelIdle = context.WithTimeout(ctx, s.cfg.ForceTeardownAfter)
		defer cancelIdle()
	}
	// Only a draining coordinator ever becomes idle.
	if s.coord.Phase() == lifespan.PhaseDraining {
		if n := s.coord.InFlight(); n > 0 {
			s.logger.Warn("waiting for running handlers before teardown", "in_flight", n)
		}
		if err := s.coord.WaitIdle(idleCtx); err != nil {
			s.logger.Warn("forcing teardown with handlers still running", "error", err)
		}
	}

	return s.coord.Stop(idleCtx)
}

func (s *Server) finish() {
	select {
	case <-s.doneCh:
	default:
		close(s.doneCh)
	}
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-s.errCh:
			return fmt.Errorf("serve: %w", err)
		case <-s.doneCh:
			return nil
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return s.Stop(context.WithoutCancel(ctx))
		case <-s.doneCh:
			// Stopped by another caller.
			return nil
		}
	})
	return g.Wait()
}

// Addr returns the bound address once Start has opened the listener.
func (s *Server) Addr() string {
	return s.addr
}

// Coordinator returns the hosted coordinator.
func (s *Server) Coordinator() *lifespan.Coordinator {
	return s.coord
}

// Err returns a channel that receives a fatal listener error.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Done is closed once the server has stopped or failed to start.
func (s *Server) Done() <-chan struct{} {
	return s.doneCh
}
