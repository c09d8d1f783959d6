// collectors/registry.go
package collectors

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the collector constructors known to the binary
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// Factory builds a collector for the given dependencies
type Factory func(deps Deps) (Collector, error)

// NewRegistry creates a new collector registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a named collector factory to the registry
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("collector has empty name")
	}
	if factory == nil {
		return fmt.Errorf("collector %q has nil factory", name)
	}

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCollector, name)
	}

	r.factories[name] = factory
	return nil
}

// Build constructs the named collector
func (r *Registry) Build(name string, deps Deps) (Collector, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown collector %q", name)
	}

	c, err := factory(deps)
	if err != nil {
		return nil, fmt.Errorf("building collector %s: %w", name, err)
	}
	return c, nil
}

// Has reports whether a collector of that name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[name]
	return exists
}

// CollectorNames returns all registered collector names, sorted
func (r *Registry) CollectorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
