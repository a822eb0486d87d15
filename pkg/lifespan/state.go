// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"iter"

	"golang.org/x/exp/slices"
)

type (
	// Reader is the read side shared by State and Snapshot. Typed keys and
	// shapes read through it, so they observe exactly the bindings that
	// name-based lookups observe.
	Reader interface {
		Lookup(name string) (any, bool)
		Keys() []string
		Len() int
	}

	// State is an ordered name→value mapping. It is what a Spec builds during
	// Enter and what every RequestState wraps. The zero value is ready to use.
	//
	// State is not safe for concurrent mutation; each unit of work owns its own.
	State struct {
		keys   []string
		values map[string]any
	}

	// Snapshot is the published, read-only form of a State. It has no
	// mutating methods; once a Store hands one out its bindings never change.
	Snapshot struct {
		state State
	}
)

// NewState returns an empty State.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// StateOf builds a State from alternating name, value pairs.
// It panics if pairs has odd length or a name is not a string.
func StateOf(pairs ...any) *State {
	if len(pairs)%2 != 0 {
		panic("lifespan.StateOf: odd number of arguments")
	}
	s := NewState()
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic("lifespan.StateOf: name must be a string")
		}
		s.Set(name, pairs[i+1])
	}
	return s
}

// Set binds name to value. Rebinding an existing name keeps its position.
func (s *State) Set(name string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, exists := s.values[name]; !exists {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

// Delete removes name and reports whether it was present.
func (s *State) Delete(name string) bool {
	if _, exists := s.values[name]; !exists {
		return false
	}
	delete(s.values, name)
	if i := slices.Index(s.keys, name); i >= 0 {
		s.keys = slices.Delete(s.keys, i, i+1)
	}
	return true
}

// Lookup returns the value bound to name and whether it exists.
func (s *State) Lookup(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Get returns the value bound to name, or a *MissingKeyError.
func (s *State) Get(name string) (any, error) {
	v, ok := s.Lookup(name)
	if !ok {
		return nil, &MissingKeyError{Key: name}
	}
	return v, nil
}

// Has reports whether name is bound.
func (s *State) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Keys returns the bound names in insertion order. The slice is a copy.
func (s *State) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.keys)
}

// Len returns the number of bindings.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// All iterates bindings in insertion order.
func (s *State) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if s == nil {
			return
		}
		for _, k := range s.keys {
			if !yield(k, s.values[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy: bindings and order are duplicated, the
// bound values themselves are shared.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	c := &State{
		keys:   slices.Clone(s.keys),
		values: make(map[string]any, len(s.values)),
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Lookup returns the value bound to name and whether it exists.
func (s *Snapshot) Lookup(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return s.state.Lookup(name)
}

// Get returns the value bound to name, or a *MissingKeyError.
func (s *Snapshot) Get(name string) (any, error) {
	v, ok := s.Lookup(name)
	if !ok {
		return nil, &MissingKeyError{Key: name}
	}
	return v, nil
}

// Keys returns the published names in insertion order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	return s.state.Keys()
}

// Len returns the number of published bindings.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.state.Len()
}

// All iterates published bindings in insertion order.
func (s *Snapshot) All() iter.Seq2[string, any] {
	if s == nil {
		return func(func(string, any) bool) {}
	}
	return s.state.All()
}
