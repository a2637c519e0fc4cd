package engine

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/cache"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/dataset"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

// testCatalog builds the fixture topology used across the engine tests:
//
//	orders    (region, amount, status) joined to customers
//	customers (region, tier)
//	inventory (sku, stock)             standalone, unreachable from orders
func testCatalog(t *testing.T) *dataset.Catalog {
	t.Helper()

	c := dataset.NewCatalog()
	require.NoError(t, c.Add(&dataset.Dataset{
		ID:   "orders",
		Name: "Orders",
		Columns: []dataset.Column{
			{Name: "region", Type: "string"},
			{Name: "amount", Type: "number"},
			{Name: "status", Type: "string"},
		},
		Joins: []string{"customers"},
	}))
	require.NoError(t, c.Add(&dataset.Dataset{
		ID:   "customers",
		Name: "Customers",
		Columns: []dataset.Column{
			{Name: "region", Type: "string"},
			{Name: "tier", Type: "string"},
		},
	}))
	require.NoError(t, c.Add(&dataset.Dataset{
		ID:   "inventory",
		Name: "Inventory",
		Columns: []dataset.Column{
			{Name: "sku", Type: "string"},
			{Name: "stock", Type: "number"},
		},
	}))
	return c
}

func regionFilter() *dashboard.Component {
	return &dashboard.Component{
		ID:      "flt-region",
		Kind:    dashboard.KindFilter,
		Title:   "Region",
		Binding: dashboard.Binding{DatasetID: "orders", Column: "region"},
		Config:  dashboard.Config{Control: "multi"},
		DefaultState: &dashboard.FilterValue{
			Kind:    dashboard.ValueMulti,
			Options: []string{"east", "west"},
		},
	}
}

func sumCard() *dashboard.Component {
	return &dashboard.Component{
		ID:      "card-revenue",
		Kind:    dashboard.KindCard,
		Title:   "Revenue",
		Binding: dashboard.Binding{DatasetID: "orders", Column: "amount"},
		Config:  dashboard.Config{Aggregate: "sum"},
	}
}

func countCard() *dashboard.Component {
	return &dashboard.Component{
		ID:      "card-orders",
		Kind:    dashboard.KindCard,
		Title:   "Order Count",
		Binding: dashboard.Binding{DatasetID: "orders", Column: "amount"},
		Config:  dashboard.Config{Aggregate: "count"},
	}
}

func customerCard() *dashboard.Component {
	return &dashboard.Component{
		ID:      "card-customers",
		Kind:    dashboard.KindCard,
		Title:   "Customers",
		Binding: dashboard.Binding{DatasetID: "customers", Column: "tier"},
		Config:  dashboard.Config{Aggregate: "count"},
	}
}

func stockCard() *dashboard.Component {
	return &dashboard.Component{
		ID:      "card-stock",
		Kind:    dashboard.KindCard,
		Title:   "Stock",
		Binding: dashboard.Binding{DatasetID: "inventory", Column: "stock"},
		Config:  dashboard.Config{Aggregate: "sum"},
	}
}

func regionFigure() *dashboard.Component {
	return &dashboard.Component{
		ID:      "fig-by-region",
		Kind:    dashboard.KindFigure,
		Title:   "Revenue by Region",
		Binding: dashboard.Binding{DatasetID: "orders", Column: "region"},
		Config:  dashboard.Config{Aggregate: "sum", Field: "amount", ChartType: "bar"},
	}
}

func ordersTable() *dashboard.Component {
	return &dashboard.Component{
		ID:      "tbl-orders",
		Kind:    dashboard.KindTable,
		Title:   "Recent Orders",
		Binding: dashboard.Binding{DatasetID: "orders", Column: "region"},
		Config:  dashboard.Config{Columns: []string{"region", "amount"}, Limit: 10},
	}
}

func ordersRows() []resolve.Row {
	return []resolve.Row{
		{"region": "east", "amount": 100.0, "status": "paid"},
		{"region": "east", "amount": 50.0, "status": "open"},
		{"region": "west", "amount": 200.0, "status": "paid"},
		{"region": "north", "amount": 999.0, "status": "paid"},
	}
}

// harness assembles the full scheduler stack over in-memory data and
// captures every emitted payload in order.
type harness struct {
	catalog   *dataset.Catalog
	registry  *dashboard.Registry
	resolver  *resolve.MemoryResolver
	tags      *resolve.MemoryTagStore
	state     *StateStore
	guard     *Guard
	builder   *PayloadBuilder
	scheduler *Scheduler

	mu      sync.Mutex
	emitted []*v1.RenderPayload
}

func newHarness(t *testing.T, components ...*dashboard.Component) *harness {
	t.Helper()

	h := &harness{
		catalog:  testCatalog(t),
		resolver: resolve.NewMemoryResolver(),
		tags: resolve.NewMemoryTagStore(map[string]string{
			"orders":    "Orders",
			"customers": "Customers",
			"inventory": "Inventory",
		}),
		state: NewStateStore(),
		guard: NewGuard(DefaultGuardWindow),
	}

	h.resolver.SetRows("orders", ordersRows())
	h.resolver.SetRows("customers", []resolve.Row{
		{"region": "east", "tier": "gold"},
		{"region": "west", "tier": "silver"},
	})
	h.resolver.SetRows("inventory", []resolve.Row{
		{"sku": "a-1", "stock": 7.0},
	})

	h.registry = dashboard.NewRegistry(h.catalog)
	var filters []*dashboard.Component
	for _, c := range components {
		require.NoError(t, h.registry.Register(c))
		if c.Kind == dashboard.KindFilter {
			filters = append(filters, c)
		}
	}
	require.NoError(t, h.state.Seed(filters))

	h.builder = NewPayloadBuilder(h.registry, h.catalog, cache.New(), h.resolver, h.tags, 0, 0)
	h.scheduler = NewScheduler(
		h.registry,
		NewGraph(h.registry, h.catalog),
		NewRouter(),
		h.builder,
		h.guard,
		h.state,
		2,
		h.record,
	)
	return h
}

func (h *harness) record(p *v1.RenderPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.emitted = append(h.emitted, p)
}

func (h *harness) emittedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.emitted))
	for _, p := range h.emitted {
		ids = append(ids, p.ComponentID)
	}
	return ids
}

func rangeValue(min, max int64) dashboard.FilterValue {
	return dashboard.FilterValue{
		Kind: dashboard.ValueRange,
		Min:  decimal.NewFromInt(min),
		Max:  decimal.NewFromInt(max),
	}
}

func multiValue(options ...string) dashboard.FilterValue {
	return dashboard.FilterValue{Kind: dashboard.ValueMulti, Options: options}
}
