// notifiers/registry.go
package notifiers

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ErrDuplicateNotifier is returned when two notifiers share a name
var ErrDuplicateNotifier = errors.New("notifier already registered")

// Registry manages the enabled notifiers
type Registry struct {
	notifiers map[string]Notifier
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistry creates a new notifier registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
		logger:    logger.Named("notifiers"),
	}
}

// Register adds a notifier to the registry
func (r *Registry) Register(notifier Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := notifier.Name()
	switch _, exists := r.notifiers[name]; {
	case name == "":
		return fmt.Errorf("notifier has empty name")
	case exists:
		return fmt.Errorf("%s: %w", name, ErrDuplicateNotifier)
	}

	r.notifiers[name] = notifier
	r.logger.Info("Registered notifier", zap.String("notifier", name))
	return nil
}

// Get returns a notifier by name
func (r *Registry) Get(name string) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notifier, exists := r.notifiers[name]
	return notifier, exists
}

// GetAll returns every registered notifier ordered by name
func (r *Registry) GetAll() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Notifier, 0, len(r.notifiers))
	for _, name := range slices.Sorted(maps.Keys(r.notifiers)) {
		result = append(result, r.notifiers[name])
	}
	return result
}

// NotifierNames returns the sorted names of all registered notifiers
func (r *Registry) NotifierNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.notifiers))
}

// Len returns the number of registered notifiers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// CloseAll closes every notifier and returns the joined errors
func (r *Registry) CloseAll() error {
	var errs []error
	for _, n := range r.GetAll() {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
