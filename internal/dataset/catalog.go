package dataset

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when a dataset is not present in the catalog.
var ErrNotFound = errors.New("dataset not found")

// Column describes one column of a dataset.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // number | string | time
}

// Dataset is a catalog entry: a queryable table plus its declared joins.
// Joins are what make a filter on one dataset cascade into components
// bound to another.
type Dataset struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
	Joins   []string `yaml:"joins"` // IDs of datasets this one joins to
}

// HasColumn reports whether the dataset declares the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Catalog holds all known datasets and answers reachability questions
// for cascade derivation. A join is treated as a symmetric relation:
// if A declares a join to B, a filter on either side affects both.
type Catalog struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		datasets: make(map[string]*Dataset),
	}
}

// Add inserts or replaces a dataset definition.
func (c *Catalog) Add(ds *Dataset) error {
	if ds == nil || ds.ID == "" {
		return errors.New("dataset id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy := *ds
	c.datasets[ds.ID] = &copy
	return nil
}

// Has reports whether the dataset exists. Used by the component
// registry to validate bindings.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.datasets[id]
	return ok
}

// Get returns a copy of the dataset definition.
func (c *Catalog) Get(id string) (*Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ds, ok := c.datasets[id]
	if !ok {
		return nil, ErrNotFound
	}

	copy := *ds
	return &copy, nil
}

// IDs returns all dataset IDs in ascending order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.datasets))
	for id := range c.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reachable returns the set of dataset IDs reachable from start over
// declared joins, including start itself, in ascending order.
// Traversal is iterative to stay safe on join cycles.
func (c *Catalog) Reachable(start string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.datasets[start]; !ok {
		return nil
	}

	// Build symmetric adjacency from the declared joins.
	adjacency := make(map[string][]string, len(c.datasets))
	for id, ds := range c.datasets {
		for _, other := range ds.Joins {
			if _, ok := c.datasets[other]; !ok {
				continue
			}
			adjacency[id] = append(adjacency[id], other)
			adjacency[other] = append(adjacency[other], id)
		}
	}

	visited := map[string]bool{start: true}
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}

	result := make([]string, 0, len(visited))
	for id := range visited {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
