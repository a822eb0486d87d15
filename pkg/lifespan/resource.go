// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

type (
	// Spec is the user-supplied startup procedure. Enter acquires resources,
	// registering each release with scope as soon as the resource exists, and
	// returns the state to publish. A nil state publishes an empty snapshot.
	//
	// Enter runs at most once per coordinator.
	Spec interface {
		Enter(ctx context.Context, scope *Scope) (*State, error)
	}

	// Exiter is implemented by specs that need whole-spec teardown on top of
	// the per-resource releases registered with the scope. Exit runs first,
	// and only if Enter succeeded.
	Exiter interface {
		Exit(ctx context.Context) error
	}

	// SpecFunc adapts a function to the Spec interface.
	SpecFunc func(ctx context.Context, scope *Scope) (*State, error)

	// ReleaseFunc releases one acquired resource.
	ReleaseFunc func(ctx context.Context) error

	// Scope collects release functions in acquisition order and runs them in
	// reverse. Only what was registered is released, so a failure between
	// two acquisitions unwinds exactly the ones before it.
	Scope struct {
		mu       sync.Mutex
		releases []release
		released bool
	}

	release struct {
		name string
		fn   ReleaseFunc
	}

	// ResourceContext pairs a Spec's acquisition with its release across
	// every exit path: success, error, panic and cancellation.
	ResourceContext struct {
		spec  Spec
		scope Scope

		mu      sync.Mutex
		entered bool
		ok      bool
		exited  bool
	}
)

// Enter implements Spec.
func (f SpecFunc) Enter(ctx context.Context, scope *Scope) (*State, error) {
	return f(ctx, scope)
}

// Defer registers fn to run during release under the given name.
// It panics if the scope has already been released.
func (s *Scope) Defer(name string, fn ReleaseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		panic(fmt.Sprintf("lifespan: Defer(%q) on a released scope", name))
	}
	s.releases = append(s.releases, release{name: name, fn: fn})
}

// Len returns the number of releases still pending.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Names returns the pending release names in acquisition order.
func (s *Scope) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.releases))
	for i, r := range s.releases {
		names[i] = r.name
	}
	return names
}

// releaseAll runs every pending release in reverse order and empties the
// scope. Each failure is wrapped with the release name; a panic is recorded
// as an error and the remaining releases still run.
func (s *Scope) releaseAll(ctx context.Context) []error {
	s.mu.Lock()
	pending := s.releases
	s.releases = nil
	s.released = true
	s.mu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		r := pending[i]
		if err := callRelease(ctx, r.fn); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", r.name, err))
		}
	}
	return errs
}

func callRelease(ctx context.Context, fn ReleaseFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Acquire opens a resource and, only if open succeeds, registers close for
// it. A nil close registers nothing.
func Acquire[T any](ctx context.Context, scope *Scope, name string, open func(context.Context) (T, error), closeFn func(context.Context, T) error) (T, error) {
	v, err := open(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("acquire %s: %w", name, err)
	}
	if closeFn != nil {
		scope.Defer(name, func(ctx context.Context) error {
			return closeFn(ctx, v)
		})
	}
	return v, nil
}

// AcquireCloser is Acquire for resources released by io.Closer.
func AcquireCloser[T io.Closer](ctx context.Context, scope *Scope, name string, open func(context.Context) (T, error)) (T, error) {
	return Acquire(ctx, scope, name, open, func(_ context.Context, v T) error {
		return v.Close()
	})
}

// NewResourceContext wraps spec.
func NewResourceContext(spec Spec) *ResourceContext {
	return &ResourceContext{spec: spec}
}

// Enter runs the acquisition portion of the Spec. If the Spec fails, panics,
// or ctx is done by the time it returns, everything acquired so far is
// released before the *StartupError is returned.
func (rc *ResourceContext) Enter(ctx context.Context) (*State, error) {
	rc.mu.Lock()
	if rc.entered {
		rc.mu.Unlock()
		return nil, &InvalidTransitionError{Op: "enter", Phase: PhaseStarting}
	}
	rc.entered = true
	rc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &StartupError{Cause: fmt.Errorf("context done before enter: %w", err)}
	}

	state, err := rc.callEnter(ctx)
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("context done during enter: %w", ctxErr)
		}
	}
	if err != nil {
		// Releases must not inherit the cancellation that may have caused
		// the failure.
		relErrs := rc.scope.releaseAll(context.WithoutCancel(ctx))
		return nil, &StartupError{Cause: err, ReleaseErr: errors.Join(relErrs...)}
	}

	rc.mu.Lock()
	rc.ok = true
	rc.mu.Unlock()

	if state == nil {
		state = NewState()
	}
	return state, nil
}

func (rc *ResourceContext) callEnter(ctx context.Context) (state *State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during enter: %v", r)
		}
	}()
	return rc.spec.Enter(ctx, &rc.scope)
}

// Exit runs the release portion at most once. Later calls return nil.
// Release is best-effort: every step runs and failures are collected into a
// *TeardownError, nothing is retried.
func (rc *ResourceContext) Exit(ctx context.Context) error {
	rc.mu.Lock()
	if rc.exited {
		rc.mu.Unlock()
		return nil
	}
	rc.exited = true
	ok := rc.ok
	rc.mu.Unlock()

	var errs []error
	if ex, isExiter := rc.spec.(Exiter); ok && isExiter {
		if err := callRelease(ctx, ex.Exit); err != nil {
			errs = append(errs, fmt.Errorf("exit spec: %w", err))
		}
	}
	errs = append(errs, rc.scope.releaseAll(ctx)...)

	if len(errs) > 0 {
		return &TeardownError{Errs: errs}
	}
	return nil
}

// Entered reports whether Enter has been called.
func (rc *ResourceContext) Entered() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.entered
}

// Exited reports whether Exit has been called.
func (rc *ResourceContext) Exited() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.exited
}
