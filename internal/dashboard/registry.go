package dashboard

import (
	"sort"
	"sync"

	"github.com/lumen-lab/project-lumen/internal/dataset"
)

// Registry holds the declarative metadata for every placed component.
// Everything else in the engine reads from it: the dependency graph is
// derived from registry contents, never hand-maintained.
//
// Mutations are append-only from the caller's perspective: editing a
// component replaces the definition under the same ID.
type Registry struct {
	mu         sync.RWMutex
	catalog    *dataset.Catalog
	components map[string]*Component
}

// NewRegistry creates a registry validating bindings against catalog.
func NewRegistry(catalog *dataset.Catalog) *Registry {
	return &Registry{
		catalog:    catalog,
		components: make(map[string]*Component),
	}
}

// Register inserts or replaces a component definition. A binding to a
// nonexistent dataset or column fails with *BindingError.
func (r *Registry) Register(c *Component) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.validateBinding(c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copy := *c
	r.components[c.ID] = &copy
	return nil
}

func (r *Registry) validateBinding(c *Component) error {
	ds, err := r.catalog.Get(c.Binding.DatasetID)
	if err != nil {
		return &BindingError{
			ComponentID: c.ID,
			DatasetID:   c.Binding.DatasetID,
			Reason:      "dataset does not exist",
		}
	}
	if c.Binding.Column != "" && !ds.HasColumn(c.Binding.Column) {
		return &BindingError{
			ComponentID: c.ID,
			DatasetID:   c.Binding.DatasetID,
			Column:      c.Binding.Column,
			Reason:      "column does not exist",
		}
	}
	return nil
}

// Get returns a copy of the component definition.
func (r *Registry) Get(id string) (*Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[id]
	if !ok {
		return nil, ErrNotFound
	}

	copy := *c
	return &copy, nil
}

// Remove deletes a component definition. Removing an unknown ID is a
// no-op (the component may already be gone with its dashboard).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.components, id)
}

// ListByKind returns components of the given kind in ascending ID
// order. The deterministic order is what cascade tie-breaking and
// tests rely on.
func (r *Registry) ListByKind(kind Kind) []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Component
	for _, c := range r.components {
		if c.Kind == kind {
			copy := *c
			result = append(result, &copy)
		}
	}
	sortByID(result)
	return result
}

// ListDependents returns the data components (card, figure, table)
// bound to datasetID, in ascending ID order. Filters are not
// dependents; they are sources.
func (r *Registry) ListDependents(datasetID string) []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Component
	for _, c := range r.components {
		if c.Kind.IsData() && c.Binding.DatasetID == datasetID {
			copy := *c
			result = append(result, &copy)
		}
	}
	sortByID(result)
	return result
}

// All returns every registered component in ascending ID order.
func (r *Registry) All() []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Component, 0, len(r.components))
	for _, c := range r.components {
		copy := *c
		result = append(result, &copy)
	}
	sortByID(result)
	return result
}

// Load replaces the registry contents with the dashboard's components.
// Called once per session open; fails atomically on the first invalid
// binding without mutating the registry.
func (r *Registry) Load(d *Dashboard) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for _, c := range d.Components {
		if err := r.validateBinding(c); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.components = make(map[string]*Component, len(d.Components))
	for _, c := range d.Components {
		copy := *c
		r.components[c.ID] = &copy
	}
	return nil
}

func sortByID(components []*Component) {
	sort.Slice(components, func(i, j int) bool {
		return components[i].ID < components[j].ID
	})
}
