// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStartup is the sentinel error wrapped by StartupError.
	ErrStartup = errors.New("startup failed")
	// ErrTeardown is the sentinel error wrapped by TeardownError.
	ErrTeardown = errors.New("teardown failed")
	// ErrNotReady is the sentinel error wrapped by NotReadyError.
	ErrNotReady = errors.New("not ready")
	// ErrAlreadyPublished is the sentinel error wrapped by AlreadyPublishedError.
	ErrAlreadyPublished = errors.New("state already published")
	// ErrMissingKey is the sentinel error wrapped by MissingKeyError.
	ErrMissingKey = errors.New("missing key")
	// ErrTypeMismatch is the sentinel error wrapped by TypeMismatchError.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrInvalidTransition is the sentinel error wrapped by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrDrainTimeout is returned by Stop when in-flight work did not finish
	// before the stop context expired. Teardown still runs.
	ErrDrainTimeout = errors.New("drain timed out")
)

type (
	// StartupError is returned when resource acquisition fails. Any resources
	// acquired before the failure have already been released when the caller
	// sees this error; ReleaseErr carries problems hit while doing so.
	StartupError struct {
		Cause      error
		ReleaseErr error
	}

	// TeardownError is returned when one or more release steps fail.
	// Teardown is best-effort: every step runs even if an earlier one failed.
	TeardownError struct {
		Errs []error
	}

	// NotReadyError is returned when work admission or snapshot access is
	// attempted outside the phases that allow it.
	NotReadyError struct {
		Op    string
		Phase Phase
	}

	// AlreadyPublishedError is returned by a second Store.Publish call.
	AlreadyPublishedError struct{}

	// MissingKeyError is returned when a state lookup names an absent key.
	MissingKeyError struct {
		Key string
	}

	// TypeMismatchError is returned when a typed accessor finds a value of
	// a different type bound to its key.
	TypeMismatchError struct {
		Key  string
		Want string
		Got  string
	}

	// InvalidTransitionError is returned when an operation is invoked in a
	// phase that does not allow it.
	InvalidTransitionError struct {
		Op    string
		Phase Phase
	}
)

// Error implements the error interface for StartupError.
func (e *StartupError) Error() string {
	msg := "startup failed"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.ReleaseErr != nil {
		msg += " (release: " + e.ReleaseErr.Error() + ")"
	}
	return msg
}

// Unwrap returns ErrStartup and the underlying causes.
func (e *StartupError) Unwrap() []error {
	errs := []error{ErrStartup}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.ReleaseErr != nil {
		errs = append(errs, e.ReleaseErr)
	}
	return errs
}

// Error implements the error interface for TeardownError.
func (e *TeardownError) Error() string {
	if len(e.Errs) == 1 {
		return "teardown failed: " + e.Errs[0].Error()
	}
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("teardown failed: %d error(s): %s", len(e.Errs), strings.Join(parts, "; "))
}

// Unwrap returns ErrTeardown and every collected release error.
func (e *TeardownError) Unwrap() []error {
	return append([]error{ErrTeardown}, e.Errs...)
}

// Error implements the error interface for NotReadyError.
func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: not ready: coordinator is %s", e.Op, e.Phase)
}

// Unwrap returns ErrNotReady for errors.Is() compatibility.
func (e *NotReadyError) Unwrap() error { return ErrNotReady }

// Error implements the error interface for AlreadyPublishedError.
func (e *AlreadyPublishedError) Error() string {
	return "state already published: a store accepts exactly one snapshot"
}

// Unwrap returns ErrAlreadyPublished for errors.Is() compatibility.
func (e *AlreadyPublishedError) Unwrap() error { return ErrAlreadyPublished }

// Error implements the error interface for MissingKeyError.
func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q", e.Key)
}

// Unwrap returns ErrMissingKey for errors.Is() compatibility.
func (e *MissingKeyError) Unwrap() error { return ErrMissingKey }

// Error implements the error interface for TypeMismatchError.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("key %q holds %s, want %s", e.Key, e.Got, e.Want)
}

// Unwrap returns ErrTypeMismatch for errors.Is() compatibility.
func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// Error implements the error interface for InvalidTransitionError.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s in phase %s", e.Op, e.Phase)
}

// Unwrap returns ErrInvalidTransition for errors.Is() compatibility.
func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
