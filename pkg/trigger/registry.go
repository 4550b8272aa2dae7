package trigger

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the active trigger definitions.
// It is swapped wholesale at the start of each cycle and read concurrently by
// the per-user workers.
type Registry struct {
	definitions map[string]*Definition
	mu          sync.RWMutex
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
	}
}

// Register adds a definition.
// Returns an error if the trigger type is already registered.
func (r *Registry) Register(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("trigger %s already registered", def.Type)
	}

	r.definitions[def.Type] = def
	return nil
}

// Replace swaps the registry contents for a freshly loaded catalog.
func (r *Registry) Replace(defs []*Definition) {
	next := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		next[def.Type] = def
	}

	r.mu.Lock()
	r.definitions = next
	r.mu.Unlock()
}

// Get returns a definition by type, or nil.
func (r *Registry) Get(triggerType string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.definitions[triggerType]
}

// GetAll returns all definitions ordered by priority (highest first), then type.
func (r *Registry) GetAll() []*Definition {
	r.mu.RLock()
	defs := make([]*Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority > defs[j].Priority
		}
		return defs[i].Type < defs[j].Type
	})
	return defs
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.definitions)
}
