package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the model schemas known to the application
type Registry struct {
	schemas map[string]*ModelSchema
	mu      sync.RWMutex
}

// NewRegistry creates an empty schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*ModelSchema),
	}
}

// Register registers a model schema. Duplicate names are an error.
func (r *Registry) Register(m *ModelSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[m.Name]; exists {
		return fmt.Errorf("model %s is already registered", m.Name)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model %s has no fields", m.Name)
	}
	for _, nk := range m.NaturalKey {
		if !m.HasField(nk) {
			return fmt.Errorf("model %s: natural key field %s does not exist", m.Name, nk)
		}
	}
	r.schemas[m.Name] = m
	return nil
}

// Get retrieves a model schema by name
func (r *Registry) Get(name string) (*ModelSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.schemas[name]
	return m, exists
}

// List returns the registered model names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists checks if a model schema is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.schemas[name]
	return exists
}

// Count returns the number of registered schemas
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.schemas)
}

// Clear removes all registered schemas (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas = make(map[string]*ModelSchema)
}
