package plugin

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a plugin's capability for one host. A nil capability is
// stored as Empty.
type Factory[H any] func(host H, settings Settings) (any, error)

// Definition is a named factory held by a Registry.
type Definition[H any] struct {
	Name    string
	Factory Factory[H]
}

// Registry holds plugin definitions shared by every runtime built on it.
// Definitions cannot be removed.
type Registry[H any] struct {
	mu   sync.RWMutex
	defs map[string]*Definition[H]
}

// NewRegistry creates an empty registry.
func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{defs: make(map[string]*Definition[H])}
}

// Define adds a plugin definition. Defining a name twice fails with
// ErrAlreadyDefined and leaves the first definition in place.
func (r *Registry[H]) Define(name string, fn Factory[H]) error {
	if name == "" {
		return ErrInvalidName
	}
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrNilFactory, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyDefined, name)
	}
	r.defs[name] = &Definition[H]{Name: name, Factory: fn}
	return nil
}

// Lookup returns the definition for name.
func (r *Registry[H]) Lookup(name string) (*Definition[H], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Defined reports whether name has a definition.
func (r *Registry[H]) Defined(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the defined plugin names, sorted.
func (r *Registry[H]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
