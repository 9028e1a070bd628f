// Package registry maps backend names to driver factories.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

// Factory builds a driver from configuration.
type Factory func(ctx context.Context, c vector.Config) (vector.Driver, error)

// Registry holds named driver factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, pre-loaded with the built-in
// backends on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
		// Built-in names are distinct, so registration cannot fail.
		_ = RegisterBuiltins(defaultRegistry, logger.Nop())
	})
	return defaultRegistry
}

// canonical normalizes a backend name.
func canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds factory under name. Registering a name twice fails unless
// allowOverride is set, in which case the new factory replaces the old one.
func (r *Registry) Register(name string, factory Factory, allowOverride bool) error {
	key := canonical(name)
	if key == "" {
		return vector.NewConfigError("name", "backend name must not be empty")
	}
	if factory == nil {
		return vector.NewConfigError("factory", fmt.Sprintf("nil factory for backend %q", key))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists && !allowOverride {
		return vector.NewConfigError("name", fmt.Sprintf("backend %q is already registered", key))
	}
	r.factories[key] = factory
	return nil
}

// Make builds a driver with the factory registered under name. Factory
// errors are returned unchanged.
func (r *Registry) Make(ctx context.Context, name string, c vector.Config) (vector.Driver, error) {
	key := canonical(name)

	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, vector.NewConfigError("provider", fmt.Sprintf("unknown backend %q", key))
	}
	return factory(ctx, c)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[canonical(name)]
	return ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}
