package engine

import (
	"fmt"
	"sync"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// FilterEntry is the live value of one filter component.
type FilterEntry struct {
	Value     dashboard.FilterValue
	IsDefault bool
}

// Snapshot is a consistent view of the filter state at one version.
// Readers always see the entries exactly as they were when the version
// was current.
type Snapshot struct {
	Version int64
	Entries map[string]FilterEntry
}

// StateStore is the single source of truth for the current filter
// snapshot of one dashboard session. Version increases strictly on
// every accepted mutation and is the sole authority for "latest";
// the scheduler's last-write-wins rule keys off it.
type StateStore struct {
	mu       sync.RWMutex
	version  int64
	entries  map[string]FilterEntry
	defaults map[string]dashboard.FilterValue
}

// NewStateStore creates an empty store at version 0.
func NewStateStore() *StateStore {
	return &StateStore{
		entries:  make(map[string]FilterEntry),
		defaults: make(map[string]dashboard.FilterValue),
	}
}

// Seed creates the filter entries from component defaults. Called once
// at session open (first render); seeding counts as the first accepted
// mutation so the initial render has a version to stamp.
func (s *StateStore) Seed(filters []*dashboard.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range filters {
		if f.Kind != dashboard.KindFilter {
			return fmt.Errorf("component %s is not a filter", f.ID)
		}
		if f.DefaultState == nil {
			return fmt.Errorf("filter %s has no default state", f.ID)
		}
		s.defaults[f.ID] = *f.DefaultState
		s.entries[f.ID] = FilterEntry{Value: *f.DefaultState, IsDefault: true}
	}
	s.version++
	return nil
}

// Apply sets a filter's value and returns the new version.
func (s *StateStore) Apply(componentID string, value dashboard.FilterValue) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defaults[componentID]
	if !ok {
		return 0, fmt.Errorf("no filter entry for component %s", componentID)
	}

	s.entries[componentID] = FilterEntry{
		Value:     value,
		IsDefault: value.Equal(def),
	}
	s.version++
	return s.version, nil
}

// ResetAll restores every filter to its default. One reset is one
// accepted mutation: the version bumps exactly once however many
// filters move.
func (s *StateStore) ResetAll() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, def := range s.defaults {
		s.entries[id] = FilterEntry{Value: def, IsDefault: true}
	}
	s.version++
	return s.version
}

// Touch bumps the version without moving any filter. Accepted triggers
// that leave filter values alone (navigation, metadata edits) still
// need a fresh version, or last-write-wins would reject their
// re-renders as stale.
func (s *StateStore) Touch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	return s.version
}

// Version returns the current version without copying entries.
func (s *StateStore) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Get returns the live entry for one filter.
func (s *StateStore) Get(componentID string) (FilterEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[componentID]
	return e, ok
}

// Snapshot returns a consistent copy of all entries at the current
// version.
func (s *StateStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make(map[string]FilterEntry, len(s.entries))
	for id, e := range s.entries {
		entries[id] = e
	}
	return Snapshot{Version: s.version, Entries: entries}
}
