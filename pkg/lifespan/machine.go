// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Transition describes one phase change. Err is set when the change was
	// caused by a failure (startup or teardown).
	Transition struct {
		From Phase
		To   Phase
		Err  error
		At   time.Time
	}

	// Observer is notified after every phase transition, outside any lock.
	// Observers run synchronously on the goroutine that caused the change.
	Observer func(Transition)

	// machine is the phase bookkeeping shared by every Coordinator.
	// A machine is single-use: once stopped, create a new coordinator.
	machine struct {
		// atomic for lock-free reads
		phase atomic.Int32

		// mu serializes transitions and guards the fields below it
		mu        sync.Mutex
		inFlight  int
		idleShut  bool
		stopping  bool
		lastErr   error
		readyCh   chan struct{}
		doneCh    chan struct{}
		idleCh    chan struct{}
		observers []Observer
	}
)

func newMachine() machine {
	return machine{
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		idleCh:  make(chan struct{}),
	}
}

// Phase returns the current phase (atomic, lock-free read).
func (m *machine) Phase() Phase {
	return Phase(m.phase.Load())
}

// IsReady reports whether work is currently admitted.
func (m *machine) IsReady() bool {
	return m.Phase() == PhaseReady
}

// Ready returns a channel closed once the snapshot is published. It is
// never closed if startup fails; select on Done as well.
func (m *machine) Ready() <-chan struct{} {
	return m.readyCh
}

// Done returns a channel closed once the coordinator reaches PhaseStopped.
func (m *machine) Done() <-chan struct{} {
	return m.doneCh
}

// LastError returns the startup or teardown error that ended the
// coordinator, or nil.
func (m *machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// InFlight returns the number of units of work begun and not yet ended.
func (m *machine) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// WaitForReady blocks until the coordinator is ready, it stops, or ctx is done.
func (m *machine) WaitForReady(ctx context.Context) error {
	select {
	case <-m.readyCh:
		return nil
	case <-m.doneCh:
		if err := m.LastError(); err != nil {
			return err
		}
		return &NotReadyError{Op: "wait for ready", Phase: m.Phase()}
	case <-ctx.Done():
		return fmt.Errorf("waiting for ready: %w", ctx.Err())
	}
}

// setPhaseLocked records a transition. Must be called with mu held; the
// returned Transition is handed to notify after unlocking.
func (m *machine) setPhaseLocked(to Phase, err error) Transition {
	from := Phase(m.phase.Load())
	m.phase.Store(int32(to))

	switch to {
	case PhaseReady:
		close(m.readyCh)
	case PhaseDraining:
		m.closeIdleLocked()
	case PhaseStopped:
		close(m.doneCh)
	}
	if err != nil {
		m.lastErr = err
	}
	return Transition{From: from, To: to, Err: err, At: time.Now()}
}

// closeIdleLocked closes idleCh once draining has no work left.
func (m *machine) closeIdleLocked() {
	if !m.idleShut && m.inFlight == 0 && Phase(m.phase.Load()) == PhaseDraining {
		m.idleShut = true
		close(m.idleCh)
	}
}

// admitLocked counts one more unit of work if the phase allows it.
func (m *machine) admitLocked() (Phase, bool) {
	p := Phase(m.phase.Load())
	if p != PhaseReady {
		return p, false
	}
	m.inFlight++
	return p, true
}

// releaseWork counts one unit of work as finished.
func (m *machine) releaseWork() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight > 0 {
		m.inFlight--
	}
	m.closeIdleLocked()
}

func (m *machine) notify(transitions ...Transition) {
	for _, t := range transitions {
		for _, obs := range m.observers {
			obs(t)
		}
	}
}
