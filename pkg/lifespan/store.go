// SPDX-License-Identifier: MPL-2.0

package lifespan

import "sync/atomic"

// Store holds the single canonical snapshot for a coordinator lifetime.
// Publish is allowed once; reads are lock-free after that.
type Store struct {
	snapshot atomic.Pointer[Snapshot]
}

// Publish freezes a shallow copy of state and makes it the canonical
// snapshot. Later changes to state are not visible through the snapshot.
// A nil state publishes an empty snapshot.
func (s *Store) Publish(state *State) (*Snapshot, error) {
	snap := &Snapshot{state: *state.Clone()}
	if !s.snapshot.CompareAndSwap(nil, snap) {
		return nil, &AlreadyPublishedError{}
	}
	return snap, nil
}

// Snapshot returns the published snapshot, or a *NotReadyError when nothing
// has been published yet.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, &NotReadyError{Op: "read snapshot", Phase: PhaseNotStarted}
	}
	return snap, nil
}

// Published reports whether Publish has succeeded.
func (s *Store) Published() bool {
	return s.snapshot.Load() != nil
}
