// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"errors"
	"fmt"
)

const (
	// PhaseNotStarted indicates the coordinator was created but Start() not called.
	PhaseNotStarted Phase = iota
	// PhaseStarting indicates Start() was called and the Spec is acquiring resources.
	PhaseStarting
	// PhaseReady indicates the snapshot is published and work may be admitted.
	PhaseReady
	// PhaseDraining indicates admission has ceased and in-flight work is finishing.
	PhaseDraining
	// PhaseStopped is terminal: teardown has run (or there was nothing to tear down).
	PhaseStopped
	// PhaseStartupFailed indicates acquisition failed; serving never begins.
	PhaseStartupFailed
)

// ErrInvalidPhase is returned when a Phase value is not one of the defined lifecycle phases.
var ErrInvalidPhase = errors.New("invalid phase")

type (
	// Phase represents the lifecycle phase of a Coordinator.
	Phase int32

	// InvalidPhaseError is returned when a Phase value is not recognized.
	// It wraps ErrInvalidPhase for errors.Is() compatibility.
	InvalidPhaseError struct {
		Value Phase
	}
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	case PhaseStartupFailed:
		return "startup-failed"
	default:
		return "unknown"
	}
}

// Error implements the error interface for InvalidPhaseError.
func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("invalid phase %d (valid: 0=not-started, 1=starting, 2=ready, 3=draining, 4=stopped, 5=startup-failed)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidPhaseError) Unwrap() error {
	return ErrInvalidPhase
}

// Validate returns nil if the Phase is one of the defined lifecycle phases,
// or an error wrapping ErrInvalidPhase if it is not.
func (p Phase) Validate() error {
	switch p {
	case PhaseNotStarted, PhaseStarting, PhaseReady, PhaseDraining, PhaseStopped, PhaseStartupFailed:
		return nil
	default:
		return &InvalidPhaseError{Value: p}
	}
}

// IsTerminal reports whether no further transitions can leave this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseStopped
}

// Serving reports whether the snapshot is readable in this phase.
// Work is admitted only in PhaseReady, but handlers that are still running
// while draining keep reading the same snapshot.
func (p Phase) Serving() bool {
	return p == PhaseReady || p == PhaseDraining
}
