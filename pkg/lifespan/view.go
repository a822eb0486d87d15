// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// RequestState is the per-unit-of-work view of the published snapshot.
//
// It embeds its own *State, so rebinding, adding or deleting names is
// private to this unit of work. Values reachable through the bindings are
// shared with the snapshot and with every other RequestState.
type RequestState struct {
	*State

	id    uuid.UUID
	owner *Coordinator
	ended atomic.Bool
}

// Derive produces a fresh RequestState holding a one-level copy of the
// snapshot's bindings at call time.
func Derive(snapshot *Snapshot) *RequestState {
	var st *State
	if snapshot == nil {
		st = NewState()
	} else {
		st = snapshot.state.Clone()
	}
	return &RequestState{State: st, id: uuid.New()}
}

// ID returns the identifier assigned to this unit of work.
func (r *RequestState) ID() uuid.UUID {
	return r.id
}

// Ended reports whether EndWork has been called for this view.
func (r *RequestState) Ended() bool {
	return r.ended.Load()
}

// markEnded returns true the first time it is called.
func (r *RequestState) markEnded() bool {
	return r.ended.CompareAndSwap(false, true)
}
