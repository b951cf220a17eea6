package transform

import (
	"fmt"
	"reflect"
	"sync"
)

// Func converts input into the target type of its registration. Nested conversions go
// through scope so they stay inside the same context.
type Func func(input any, scope *Scope) (any, error)

type mapping struct {
	from reflect.Type
	to   reflect.Type
}

// Registry holds transformation functions grouped by context.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]map[mapping]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]map[mapping]Func)}
}

// Register adds fn for converting values of type from into type to within context.
// A later registration for the same pair replaces the earlier one.
func (r *Registry) Register(context string, from, to reflect.Type, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	funcs, ok := r.contexts[context]
	if !ok {
		funcs = make(map[mapping]Func)
		r.contexts[context] = funcs
	}
	funcs[mapping{from: from, to: to}] = fn
}

// Contexts returns the number of registered contexts.
func (r *Registry) Contexts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// HasContext reports whether any mapping is registered for name.
func (r *Registry) HasContext(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts[name]) > 0
}

// ForContext returns a read-only snapshot of the mappings registered for name.
// Registrations made afterwards are not visible to the returned scope.
func (r *Registry) ForContext(name string) *Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	funcs := make(map[mapping]Func, len(r.contexts[name]))
	for k, fn := range r.contexts[name] {
		funcs[k] = fn
	}
	return &Scope{name: name, funcs: funcs}
}

// Scope is the set of transformations of a single context.
type Scope struct {
	name  string
	funcs map[mapping]Func
}

// Name returns the context name.
func (s *Scope) Name() string {
	return s.name
}

// Transform converts input into a value of type to.
func (s *Scope) Transform(input any, to reflect.Type) (any, error) {
	if input == nil {
		return nil, fmt.Errorf("transform %s: nil input", to)
	}
	from := reflect.TypeOf(input)
	fn, ok := s.funcs[mapping{from: from, to: to}]
	if !ok {
		return nil, fmt.Errorf("no transformer registered in context %q for %s -> %s", s.name, from, to)
	}
	return fn(input, s)
}

// Transform is the typed form of Scope.Transform.
func Transform[T any](s *Scope, input any) (T, error) {
	var zero T
	out, err := s.Transform(input, TypeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("transformer in context %q returned %T, want %s", s.name, out, TypeOf[T]())
	}
	return typed, nil
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
