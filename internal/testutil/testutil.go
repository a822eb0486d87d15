// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"io"
	"testing"
	"time"
)

// stopTimeout bounds every Stop issued from a test helper.
const stopTimeout = 10 * time.Second

type (
	// Starter is implemented by coordinators and servers.
	Starter interface {
		Start(ctx context.Context) error
	}

	// Stopper is implemented by coordinators and servers.
	Stopper interface {
		Stop(ctx context.Context) error
	}
)

// MustStart starts s and registers a cleanup that stops it.
// The test fails immediately if Start fails.
func MustStart[T interface {
	Starter
	Stopper
}](t testing.TB, s T) T {
	t.Helper()
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	t.Cleanup(DeferStop(t, s))
	return s
}

// MustClose closes the given io.Closer.
// The test fails immediately if the close fails.
func MustClose(t testing.TB, c io.Closer) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
}

// MustStop stops s with a bounded context.
// Unlike MustClose, this logs errors but doesn't fail the test,
// as teardown errors are non-fatal.
func MustStop(t testing.TB, s Stopper) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Logf("warning: stop returned error: %v", err)
	}
}

// DeferClose returns a cleanup function that closes the given io.Closer,
// logging any errors.
func DeferClose(t testing.TB, c io.Closer) func() {
	t.Helper()
	return func() {
		t.Helper()
		if err := c.Close(); err != nil {
			t.Logf("warning: close returned error: %v", err)
		}
	}
}

// DeferStop returns a cleanup function that stops s, logging any errors.
func DeferStop(t testing.TB, s Stopper) func() {
	t.Helper()
	return func() {
		t.Helper()
		MustStop(t, s)
	}
}
