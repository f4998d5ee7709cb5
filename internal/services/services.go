// Package services is a keyed registry of the systems started during boot. Systems register themselves once they are
// initialized, and the rest of the application resolves them later by type or by name.
package services

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrNotRegistered is returned when resolving a service that was never registered.
var ErrNotRegistered = errors.New("service not registered")

// Registry stores named service instances.
type Registry struct {
	mu    sync.RWMutex
	store map[string]any
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{store: make(map[string]any)}
}

// RegisterNamed stores value under name, replacing whatever was registered under it before.
func (r *Registry) RegisterNamed(name string, value any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		r.store = make(map[string]any)
	}
	r.store[name] = value
}

// ResolveNamed returns the value registered under name.
func (r *Registry) ResolveNamed(name string) (any, error) {
	if r == nil {
		return nil, errors.Wrapf(ErrNotRegistered, "resolve %q", name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.store[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotRegistered, "resolve %q", name)
	}
	return v, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.store))
	for name := range r.store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register stores value under the name of its type parameter, so that Resolve[T] finds it. Register interface types
// explicitly, e.g. Register[audio.Player](r, mgr), to resolve them by interface.
func Register[T any](r *Registry, value T) {
	r.RegisterNamed(key[T](), value)
}

// Resolve returns the value registered for T.
func Resolve[T any](r *Registry) (T, error) {
	var zero T
	v, err := r.ResolveNamed(key[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.AssertionFailedf("service %s has type %T", key[T](), v)
	}
	return typed, nil
}

// MustResolve returns the value registered for T or panics if there is none.
func MustResolve[T any](r *Registry) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(fmt.Sprintf("services: %v", err))
	}
	return v
}

func key[T any]() string {
	return reflect.TypeFor[T]().String()
}
