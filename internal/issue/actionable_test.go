// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "load configuration"},
			expected: "failed to load configuration",
		},
		{
			name: "operation with resource",
			err: &ActionableError{
				Operation: "load configuration",
				Resource:  "./config.cue",
			},
			expected: "failed to load configuration: ./config.cue",
		},
		{
			name: "operation with cause",
			err: &ActionableError{
				Operation: "open visits database",
				Cause:     errors.New("disk I/O error"),
			},
			expected: "failed to open visits database: disk I/O error",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "listen",
				Resource:  "127.0.0.1:8080",
				Cause:     errors.New("address already in use"),
			},
			expected: "failed to listen: 127.0.0.1:8080: address already in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root")
	err := NewErrorContext().
		WithOperation("start service").
		WithResource("visits").
		Wrap(cause).
		BuildError()
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Resource != "visits" {
		t.Errorf("errors.As = %+v", ae)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("connection refused")
	err := NewErrorContext().
		WithOperation("start service").
		WithSuggestion("Check the database path").
		WithSuggestion("Run with --log-level debug").
		Wrap(fmt.Errorf("acquire db: %w", inner)).
		Build()

	plain := err.Format(false)
	if strings.Contains(plain, "Error chain") {
		t.Error("non-verbose output should not include the error chain")
	}
	for _, want := range []string{"• Check the database path", "• Run with --log-level debug"} {
		if !strings.Contains(plain, want) {
			t.Errorf("Format(false) missing %q:\n%s", want, plain)
		}
	}

	verbose := err.Format(true)
	for _, want := range []string{"Error chain:", "1. acquire db: connection refused", "2. connection refused"} {
		if !strings.Contains(verbose, want) {
			t.Errorf("Format(true) missing %q:\n%s", want, verbose)
		}
	}
	if !err.HasSuggestions() {
		t.Error("HasSuggestions() = false")
	}
}

func TestActionableError_FormatJoinedCause(t *testing.T) {
	t.Parallel()

	drain := errors.New("drain timed out")
	release := fmt.Errorf("release db: %w", errors.New("database is locked"))
	err := NewErrorContext().
		WithOperation("stop service").
		Wrap(errors.Join(drain, release)).
		Build()

	verbose := err.Format(true)
	for _, want := range []string{"    2. drain timed out", "    3. release db: database is locked", "    4. database is locked"} {
		if !strings.Contains(verbose, want) {
			t.Errorf("Format(true) missing %q:\n%s", want, verbose)
		}
	}
}

func TestErrorContext_BuildCopies(t *testing.T) {
	t.Parallel()

	ctx := NewErrorContext().WithOperation("listen").WithSuggestion("first")
	a := ctx.Build()
	ctx.WithSuggestion("second")
	b := ctx.Build()

	if len(a.Suggestions) != 1 || len(b.Suggestions) != 2 {
		t.Errorf("suggestions leaked between builds: a=%v b=%v", a.Suggestions, b.Suggestions)
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want untyped nil", err)
	}
}
