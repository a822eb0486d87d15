// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
)

type (
	// MutableBox is a shared mutable value reachable through state.
	MutableBox struct {
		v atomic.Int64
	}

	// ledger records acquisitions and releases across a spec's lifetime.
	ledger struct {
		mu       sync.Mutex
		acquired []string
		released []string
	}

	// ledgerSpec acquires each named resource in order and fails at failAt
	// (if non-empty) before acquiring it.
	ledgerSpec struct {
		ledger     *ledger
		names      []string
		failAt     string
		releaseErr map[string]error
		enterCalls atomic.Int32
		exitCalls  atomic.Int32
		exitErr    error
	}
)

var errBoom = errors.New("boom")

func (b *MutableBox) Add(n int64) { b.v.Add(n) }

func (b *MutableBox) Load() int64 { return b.v.Load() }

func (l *ledger) acquire(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, name)
}

func (l *ledger) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, name)
}

func (l *ledger) Acquired() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.acquired)
}

func (l *ledger) Released() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.released)
}

func newLedgerSpec(names ...string) *ledgerSpec {
	return &ledgerSpec{ledger: &ledger{}, names: names}
}

func (s *ledgerSpec) Enter(ctx context.Context, scope *Scope) (*State, error) {
	s.enterCalls.Add(1)
	st := NewState()
	for _, name := range s.names {
		if name == s.failAt {
			return nil, errBoom
		}
		v, err := Acquire(ctx, scope, name,
			func(context.Context) (string, error) {
				s.ledger.acquire(name)
				return "value-" + name, nil
			},
			func(context.Context, string) error {
				s.ledger.release(name)
				return s.releaseErr[name]
			},
		)
		if err != nil {
			return nil, err
		}
		st.Set(name, v)
	}
	return st, nil
}

func (s *ledgerSpec) Exit(context.Context) error {
	s.exitCalls.Add(1)
	return s.exitErr
}

func mustStart(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
}

func mustBegin(t *testing.T, c *Coordinator) *RequestState {
	t.Helper()
	rs, err := c.BeginWork()
	if err != nil {
		t.Fatalf("BeginWork() failed: %v", err)
	}
	return rs
}
