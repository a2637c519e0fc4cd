package engine

import (
	"fmt"
	"sort"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/dataset"
)

// Graph answers "which components must react to this event". It is
// derived lazily from the registry and the dataset catalog on every
// call, so adding a component wires it into future cascades with no
// separate registration step.
type Graph struct {
	registry *dashboard.Registry
	catalog  *dataset.Catalog
}

// NewGraph creates a graph over the given registry and catalog.
func NewGraph(registry *dashboard.Registry, catalog *dataset.Catalog) *Graph {
	return &Graph{registry: registry, catalog: catalog}
}

// AffectedBy returns the IDs of all components that must recompute for
// the event, in ascending ID order. The deterministic order is the
// tie-break for simultaneous independent triggers; actual execution may
// parallelize since affected components are otherwise independent.
func (g *Graph) AffectedBy(e Event) ([]string, error) {
	switch e.Kind {
	case v1.EventFilterChanged:
		return g.affectedByFilter(e.ComponentID)
	case v1.EventResetAll:
		return g.affectedByReset()
	case v1.EventNavigation:
		return g.affectedByNavigation(), nil
	case v1.EventMetadataChanged:
		if _, err := g.registry.Get(e.ComponentID); err != nil {
			return nil, fmt.Errorf("metadata_changed for unknown component %s: %w", e.ComponentID, err)
		}
		return []string{e.ComponentID}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}

// affectedByFilter: the filter itself (it re-renders its new value)
// plus every data component whose dataset is reachable from the
// filter's dataset over declared joins.
func (g *Graph) affectedByFilter(filterID string) ([]string, error) {
	f, err := g.registry.Get(filterID)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", filterID, err)
	}
	if f.Kind != dashboard.KindFilter {
		return nil, fmt.Errorf("component %s is a %s, not a filter", filterID, f.Kind)
	}

	affected := map[string]bool{filterID: true}
	for _, ds := range g.catalog.Reachable(f.Binding.DatasetID) {
		for _, c := range g.registry.ListDependents(ds) {
			affected[c.ID] = true
		}
	}
	return sortedIDs(affected), nil
}

// affectedByReset: every filter plus everything those filters would
// affect.
func (g *Graph) affectedByReset() ([]string, error) {
	affected := map[string]bool{}
	for _, f := range g.registry.ListByKind(dashboard.KindFilter) {
		ids, err := g.affectedByFilter(f.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			affected[id] = true
		}
	}
	return sortedIDs(affected), nil
}

// affectedByNavigation: page entry re-renders every data component.
// Filter controls keep their values; they have nothing to recompute.
func (g *Graph) affectedByNavigation() []string {
	affected := map[string]bool{}
	for _, kind := range []dashboard.Kind{dashboard.KindCard, dashboard.KindFigure, dashboard.KindTable} {
		for _, c := range g.registry.ListByKind(kind) {
			affected[c.ID] = true
		}
	}
	return sortedIDs(affected)
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
