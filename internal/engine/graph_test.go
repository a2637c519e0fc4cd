package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
)

func TestGraphFilterChangedReachesJoinedDatasets(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), countCard(), customerCard(), stockCard())

	affected, err := h.scheduler.graph.AffectedBy(Event{
		Kind:        v1.EventFilterChanged,
		ComponentID: "flt-region",
		Value:       multiValue("east"),
	})
	require.NoError(t, err)

	// The filter itself, both orders cards, and the customers card via
	// the declared join. The standalone inventory card is untouched.
	assert.Equal(t, []string{"card-customers", "card-orders", "card-revenue", "flt-region"}, affected)
}

func TestGraphFilterChangedUnknownComponent(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())

	_, err := h.scheduler.graph.AffectedBy(Event{
		Kind:        v1.EventFilterChanged,
		ComponentID: "flt-nope",
	})
	assert.Error(t, err)
}

func TestGraphFilterChangedRejectsDataComponent(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())

	_, err := h.scheduler.graph.AffectedBy(Event{
		Kind:        v1.EventFilterChanged,
		ComponentID: "card-revenue",
	})
	assert.Error(t, err)
}

func TestGraphResetAllUnionsAllFilters(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), customerCard(), stockCard())

	affected, err := h.scheduler.graph.AffectedBy(Event{Kind: v1.EventResetAll})
	require.NoError(t, err)

	assert.Equal(t, []string{"card-customers", "card-revenue", "flt-region"}, affected)
	assert.NotContains(t, affected, "card-stock")
}

func TestGraphNavigationAffectsAllDataComponents(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), regionFigure(), ordersTable(), stockCard())

	affected, err := h.scheduler.graph.AffectedBy(Event{Kind: v1.EventNavigation})
	require.NoError(t, err)

	// Every data component, filters excluded: navigation re-renders the
	// page, it does not move any filter.
	assert.Equal(t, []string{"card-revenue", "card-stock", "fig-by-region", "tbl-orders"}, affected)
}

func TestGraphMetadataChangedAffectsOnlySelf(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), countCard())

	affected, err := h.scheduler.graph.AffectedBy(Event{
		Kind:        v1.EventMetadataChanged,
		ComponentID: "card-revenue",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"card-revenue"}, affected)
}

func TestGraphNewComponentJoinsFutureCascades(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())

	before, err := h.scheduler.graph.AffectedBy(Event{
		Kind:        v1.EventFilterChanged,
		ComponentID: "flt-region",
	})
	require.NoError(t, err)
	require.NotContains(t, before, "card-orders")

	// No explicit graph registration step: deriving from the registry
	// means a newly placed component is in the very next cascade.
	require.NoError(t, h.registry.Register(countCard()))

	after, err := h.scheduler.graph.AffectedBy(Event{
		Kind:        v1.EventFilterChanged,
		ComponentID: "flt-region",
	})
	require.NoError(t, err)
	assert.Contains(t, after, "card-orders")
}
