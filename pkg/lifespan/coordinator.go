// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Coordinator drives the lifespan of one service instance: it runs the
// Spec's acquisition, publishes the resulting state, gates work admission,
// and runs teardown exactly once after in-flight work has drained.
//
// A Coordinator is single-use. Start and Stop must not be called
// concurrently with each other; BeginWork and EndWork may be called from any
// number of goroutines.
type Coordinator struct {
	machine

	rc    *ResourceContext
	store Store
	shape *Shape

	startupTimeout  time.Duration
	teardownTimeout time.Duration

	logger *log.Logger
}

// New creates a Coordinator for spec in PhaseNotStarted.
func New(spec Spec, opts ...Option) *Coordinator {
	c := &Coordinator{
		machine: newMachine(),
		rc:      NewResourceContext(spec),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "lifespan",
			Level:  log.WarnLevel,
		}),
	}
	c.phase.Store(int32(PhaseNotStarted))

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs the Spec's acquisition and publishes its state. It returns
// nil once the coordinator is Ready. On failure it returns a *StartupError;
// by then every partially acquired resource has been released and the
// coordinator is Stopped. The caller must not serve work after a failure.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if p := c.Phase(); p != PhaseNotStarted {
		c.mu.Unlock()
		return &InvalidTransitionError{Op: "start", Phase: p}
	}
	t := c.setPhaseLocked(PhaseStarting, nil)
	c.mu.Unlock()
	c.notify(t)

	startCtx := ctx
	if c.startupTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, c.startupTimeout)
		defer cancel()
	}

	began := time.Now()
	state, err := c.rc.Enter(startCtx)
	if err == nil {
		if verr := c.shape.Validate(state); verr != nil {
			err = &StartupError{Cause: fmt.Errorf("state does not match declared shape: %w", verr)}
		}
	}
	if err == nil {
		_, err = c.store.Publish(state)
	}
	if err != nil {
		return c.failStartup(ctx, err)
	}

	c.mu.Lock()
	t = c.setPhaseLocked(PhaseReady, nil)
	c.mu.Unlock()
	c.notify(t)

	c.logger.Info("lifespan ready", "keys", state.Len(), "took", time.Since(began).Round(time.Millisecond))
	return nil
}

// failStartup moves Starting → StartupFailed → Stopped, attempting the
// release path in between.
func (c *Coordinator) failStartup(ctx context.Context, err error) error {
	var startupErr *StartupError
	if !errors.As(err, &startupErr) {
		startupErr = &StartupError{Cause: err}
	}

	c.mu.Lock()
	failed := c.setPhaseLocked(PhaseStartupFailed, startupErr)
	c.mu.Unlock()
	c.notify(failed)

	c.logger.Error("lifespan startup failed", "error", startupErr.Cause)

	if exitErr := c.exit(ctx); exitErr != nil {
		startupErr.ReleaseErr = errors.Join(startupErr.ReleaseErr, exitErr)
	}

	c.mu.Lock()
	stopped := c.setPhaseLocked(PhaseStopped, nil)
	c.mu.Unlock()
	c.notify(stopped)

	return startupErr
}

// Drain stops admitting new work. It reports whether this call moved the
// coordinator from Ready to Draining.
func (c *Coordinator) Drain() bool {
	c.mu.Lock()
	if c.Phase() != PhaseReady {
		c.mu.Unlock()
		return false
	}
	t := c.setPhaseLocked(PhaseDraining, nil)
	c.mu.Unlock()
	c.notify(t)
	c.logger.Debug("lifespan draining", "in_flight", c.InFlight())
	return true
}

// Stop drains and tears down. It waits until every unit of work begun with
// BeginWork has been ended, or ctx is done, then runs the release path
// exactly once and moves to Stopped.
//
// A *TeardownError in the result is non-fatal: the coordinator is Stopped
// regardless. If ctx expires first, teardown still runs and the error also
// wraps ErrDrainTimeout. Stop is safe to call multiple times; later calls
// wait for the first to finish and return nil.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch p := c.Phase(); p {
	case PhaseNotStarted:
		t := c.setPhaseLocked(PhaseStopped, nil)
		c.mu.Unlock()
		c.notify(t)
		return nil
	case PhaseStarting:
		c.mu.Unlock()
		return &InvalidTransitionError{Op: "stop", Phase: p}
	case PhaseStartupFailed, PhaseStopped:
		c.mu.Unlock()
		<-c.doneCh
		return nil
	}
	if c.stopping {
		c.mu.Unlock()
		<-c.doneCh
		return nil
	}
	c.stopping = true
	var transitions []Transition
	if c.Phase() == PhaseReady {
		transitions = append(transitions, c.setPhaseLocked(PhaseDraining, nil))
	}
	c.mu.Unlock()
	c.notify(transitions...)

	drainErr := c.waitIdle(ctx)
	if drainErr != nil {
		c.logger.Warn("lifespan drain incomplete, tearing down anyway", "in_flight", c.InFlight())
	}
	teardownErr := c.exit(ctx)

	c.mu.Lock()
	t := c.setPhaseLocked(PhaseStopped, teardownErr)
	c.mu.Unlock()
	c.notify(t)

	return errors.Join(drainErr, teardownErr)
}

// WaitIdle blocks until the coordinator is draining with no work in flight,
// or ctx is done. Hosts whose handlers can outlive their transport (a
// closed connection does not stop a running handler) call it between
// Drain and Stop.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	return c.waitIdle(ctx)
}

// waitIdle blocks until no work is in flight or ctx is done. An already
// idle coordinator never reports a drain timeout.
func (c *Coordinator) waitIdle(ctx context.Context) error {
	select {
	case <-c.idleCh:
		return nil
	default:
	}
	select {
	case <-c.idleCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d unit(s) of work still in flight: %w", ErrDrainTimeout, c.InFlight(), ctx.Err())
	}
}

// exit runs the release path with a context that outlives ctx's
// cancellation but honors the teardown timeout.
func (c *Coordinator) exit(ctx context.Context) error {
	tctx := context.WithoutCancel(ctx)
	if c.teardownTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, c.teardownTimeout)
		defer cancel()
	}

	began := time.Now()
	err := c.rc.Exit(tctx)
	if err != nil {
		c.logger.Error("lifespan teardown failed", "error", err)
		return err
	}
	c.logger.Info("lifespan stopped", "took", time.Since(began).Round(time.Millisecond))
	return nil
}

// BeginWork admits one unit of work and returns its RequestState.
// It fails with a *NotReadyError unless the coordinator is Ready.
// Every successful BeginWork must be paired with EndWork.
func (c *Coordinator) BeginWork() (*RequestState, error) {
	c.mu.Lock()
	p, ok := c.admitLocked()
	c.mu.Unlock()
	if !ok {
		return nil, &NotReadyError{Op: "begin work", Phase: p}
	}

	// Ready implies published.
	snap, err := c.store.Snapshot()
	if err != nil {
		c.machine.releaseWork()
		return nil, err
	}
	rs := Derive(snap)
	rs.owner = c
	return rs, nil
}

// EndWork reports rs finished. Calling it more than once for the same rs,
// or with a RequestState this coordinator did not hand out, does nothing.
func (c *Coordinator) EndWork(rs *RequestState) {
	if rs == nil || rs.owner != c || !rs.markEnded() {
		return
	}
	c.machine.releaseWork()
}

// Snapshot returns the published snapshot while Ready or Draining.
func (c *Coordinator) Snapshot() (*Snapshot, error) {
	if p := c.Phase(); !p.Serving() {
		return nil, &NotReadyError{Op: "read snapshot", Phase: p}
	}
	return c.store.Snapshot()
}
