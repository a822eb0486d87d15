// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"errors"
	"fmt"
	"reflect"
)

type (
	// Key is a typed accessor for one name in the state key space. It holds
	// no value of its own: Get and Set go through the same bindings that
	// State.Get and State.Set use, so both access styles always agree.
	Key[T any] struct {
		name string
	}

	// Shape declares, ahead of time, which typed keys a state must carry.
	// Build one with DeclareKey and hand it to WithShape so the coordinator
	// rejects a startup that would publish a state missing a declared key.
	Shape struct {
		fields []shapeField
	}

	shapeField struct {
		name  string
		want  string
		check func(any) bool
	}
)

// NewKey returns a typed accessor for name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// DeclareKey adds name with type T to shape and returns its accessor.
func DeclareKey[T any](shape *Shape, name string) Key[T] {
	shape.fields = append(shape.fields, shapeField{
		name: name,
		want: typeName[T](),
		check: func(v any) bool {
			_, ok := as[T](v)
			return ok
		},
	})
	return NewKey[T](name)
}

// Name returns the state key this accessor reads and writes.
func (k Key[T]) Name() string { return k.name }

// String implements fmt.Stringer.
func (k Key[T]) String() string {
	return fmt.Sprintf("%s(%s)", k.name, typeName[T]())
}

// Lookup returns the bound value as T. ok is false when the key is absent
// or holds a value of another type.
func (k Key[T]) Lookup(r Reader) (T, bool) {
	v, err := k.Get(r)
	return v, err == nil
}

// Get returns the bound value as T, or a *MissingKeyError / *TypeMismatchError.
func (k Key[T]) Get(r Reader) (T, error) {
	var zero T
	raw, ok := r.Lookup(k.name)
	if !ok {
		return zero, &MissingKeyError{Key: k.name}
	}
	v, ok := as[T](raw)
	if !ok {
		return zero, &TypeMismatchError{Key: k.name, Want: typeName[T](), Got: fmt.Sprintf("%T", raw)}
	}
	return v, nil
}

// MustGet is like Get but panics on error. Use it only for keys a Shape
// guarantees.
func (k Key[T]) MustGet(r Reader) T {
	v, err := k.Get(r)
	if err != nil {
		panic(err)
	}
	return v
}

// Set binds value under the accessor's name in s.
func (k Key[T]) Set(s *State, value T) {
	s.Set(k.name, value)
}

// Names returns the declared key names in declaration order.
func (s *Shape) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Validate checks that every declared key is present in r with its declared
// type. All violations are reported together.
func (s *Shape) Validate(r Reader) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, f := range s.fields {
		v, ok := r.Lookup(f.name)
		if !ok {
			errs = append(errs, &MissingKeyError{Key: f.name})
			continue
		}
		if !f.check(v) {
			errs = append(errs, &TypeMismatchError{Key: f.name, Want: f.want, Got: fmt.Sprintf("%T", v)})
		}
	}
	return errors.Join(errs...)
}

// as converts a bound value to T. A nil binding is the zero T for every
// type that can hold nil, matching what a name-based Get returns.
func as[T any](raw any) (T, bool) {
	if v, ok := raw.(T); ok {
		return v, true
	}
	var zero T
	if raw != nil {
		return zero, false
	}
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return zero, true
	default:
		return zero, false
	}
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
