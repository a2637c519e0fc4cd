package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// MemoryRepository is an in-memory implementation of Repository.
// Useful for testing and development.
type MemoryRepository struct {
	mu         sync.RWMutex
	dashboards map[string]*dashboard.Dashboard
}

// NewMemoryRepository creates a new in-memory dashboard repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		dashboards: make(map[string]*dashboard.Dashboard),
	}
}

func (r *MemoryRepository) Load(ctx context.Context, id string) (*dashboard.Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.dashboards[id]
	if !ok {
		return nil, dashboard.ErrDashboardNotFound
	}
	return cloneDashboard(d), nil
}

func (r *MemoryRepository) Save(ctx context.Context, d *dashboard.Dashboard) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dashboards[d.ID] = cloneDashboard(d)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.dashboards))
	for id := range r.dashboards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// cloneDashboard deep-copies a definition so callers cannot mutate the
// stored one.
func cloneDashboard(d *dashboard.Dashboard) *dashboard.Dashboard {
	copy := *d
	copy.Components = make([]*dashboard.Component, len(d.Components))
	for i, c := range d.Components {
		cc := *c
		if c.DefaultState != nil {
			ds := *c.DefaultState
			cc.DefaultState = &ds
		}
		copy.Components[i] = &cc
	}
	return &copy
}
