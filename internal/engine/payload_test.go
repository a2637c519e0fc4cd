package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

func TestPredicatesForFilterReachesJoinedDataset(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), customerCard(), stockCard())
	snap := h.state.Snapshot()

	// Same dataset: predicate applies directly.
	preds := h.builder.PredicatesFor(sumCard(), snap)
	require.Len(t, preds, 1)
	assert.Equal(t, "region", preds[0].Column)
	assert.Equal(t, resolve.OpIn, preds[0].Op)

	// Joined dataset that also has the column: predicate carries over.
	preds = h.builder.PredicatesFor(customerCard(), snap)
	require.Len(t, preds, 1)
	assert.Equal(t, "region", preds[0].Column)

	// Unreachable dataset: no predicate.
	assert.Empty(t, h.builder.PredicatesFor(stockCard(), snap))
}

func TestPredicatesForSkipsMissingColumn(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())

	// A filter on a column the target dataset does not declare
	// contributes nothing, even when the dataset is reachable.
	statusFilter := &dashboard.Component{
		ID:           "flt-status",
		Kind:         dashboard.KindFilter,
		Binding:      dashboard.Binding{DatasetID: "orders", Column: "status"},
		Config:       dashboard.Config{Control: "scalar"},
		DefaultState: &dashboard.FilterValue{Kind: dashboard.ValueScalar, Scalar: "paid"},
	}
	require.NoError(t, h.registry.Register(statusFilter))
	require.NoError(t, h.state.Seed([]*dashboard.Component{statusFilter}))
	snap := h.state.Snapshot()

	preds := h.builder.PredicatesFor(customerCard(), snap)
	require.Len(t, preds, 1)
	assert.Equal(t, "region", preds[0].Column)
}

func TestBuildFilterEchoesSnapshot(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())

	_, err := h.state.Apply("flt-region", multiValue("east"))
	require.NoError(t, err)
	snap := h.state.Snapshot()

	p := h.builder.BuildFilter(regionFilter(), snap)
	assert.Equal(t, "flt-region", p.ComponentID)
	assert.Equal(t, snap.Version, p.Version)
	assert.Equal(t, v1.PayloadOK, p.State)
	require.NotNil(t, p.FilterValue)
	assert.Equal(t, multiValue("east"), *p.FilterValue)
	assert.False(t, p.IsDefault)
}

func TestBuildDataCard(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())
	snap := h.state.Snapshot()

	// Default filter keeps east+west: 100 + 50 + 200.
	p, err := h.builder.BuildData(context.Background(), sumCard(), snap)
	require.NoError(t, err)
	assert.Equal(t, "350", p.Value)
	assert.Equal(t, "Orders", p.Tag)
	assert.Equal(t, v1.PayloadOK, p.State)
	assert.Equal(t, snap.Version, p.Version)

	// Narrowing the filter narrows the aggregate.
	_, err = h.state.Apply("flt-region", multiValue("east"))
	require.NoError(t, err)
	p, err = h.builder.BuildData(context.Background(), sumCard(), h.state.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "150", p.Value)
}

func TestBuildDataFigure(t *testing.T) {
	h := newHarness(t, regionFilter(), regionFigure())

	p, err := h.builder.BuildData(context.Background(), regionFigure(), h.state.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"east": "150", "west": "200"}, p.Series)
}

func TestBuildDataTable(t *testing.T) {
	h := newHarness(t, regionFilter(), ordersTable())

	p, err := h.builder.BuildData(context.Background(), ordersTable(), h.state.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount"}, p.Columns)
	assert.Len(t, p.Rows, 3)

	// A limit below the row count truncates.
	limited := ordersTable()
	limited.Config.Limit = 2
	p, err = h.builder.BuildData(context.Background(), limited, h.state.Snapshot())
	require.NoError(t, err)
	assert.Len(t, p.Rows, 2)
}

func TestBuildDataSharedFingerprintHitsCacheOnce(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), countCard())
	snap := h.state.Snapshot()

	// Both cards bind orders with the same predicates, so the second
	// build reuses the first resolution.
	_, err := h.builder.BuildData(context.Background(), sumCard(), snap)
	require.NoError(t, err)
	_, err = h.builder.BuildData(context.Background(), countCard(), snap)
	require.NoError(t, err)

	assert.Equal(t, int64(1), h.resolver.ResolveCalls())
}

func TestBuildDataResolveFailure(t *testing.T) {
	h := newHarness(t, regionFilter(), stockCard())
	h.resolver.FailDataset("inventory", errors.New("connection refused"))

	_, err := h.builder.BuildData(context.Background(), stockCard(), h.state.Snapshot())
	require.Error(t, err)

	var remoteErr *resolve.RemoteError
	assert.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "inventory", remoteErr.DatasetID)
}

type failingTags struct{}

func (failingTags) LookupTag(context.Context, string) (string, error) {
	return "", errors.New("tag service down")
}

func (failingTags) LookupTags(context.Context, []string) (map[string]string, error) {
	return nil, errors.New("tag service down")
}

func TestTagLookupFailureFallsBackToDatasetID(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())
	h.builder.tags = failingTags{}

	p, err := h.builder.BuildData(context.Background(), sumCard(), h.state.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "orders", p.Tag)
}

func TestPrimeTagsSingleBatchedLookup(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard(), customerCard(), stockCard())

	h.builder.PrimeTags(context.Background(), []string{"orders", "customers", "inventory"})

	assert.Equal(t, int64(1), h.tags.BatchCalls())
	assert.Equal(t, int64(0), h.tags.SingleCalls())

	// Subsequent per-component tag resolution is served from the cache.
	snap := h.state.Snapshot()
	for _, c := range []*dashboard.Component{sumCard(), customerCard(), stockCard()} {
		p, err := h.builder.BuildData(context.Background(), c, snap)
		require.NoError(t, err)
		assert.NotEmpty(t, p.Tag)
	}
	assert.Equal(t, int64(0), h.tags.SingleCalls())
	assert.Equal(t, int64(1), h.tags.BatchCalls())
}

func TestMetadataLocalEquivalentToRemoteRebuild(t *testing.T) {
	h := newHarness(t, regionFilter(), sumCard())
	snap := h.state.Snapshot()

	before, err := h.builder.BuildData(context.Background(), sumCard(), snap)
	require.NoError(t, err)

	renamed := sumCard()
	renamed.Title = "Total Revenue"
	require.NoError(t, h.registry.Register(renamed))

	// Local path: re-dress the held payload.
	local := h.builder.BuildMetadataLocal(renamed, before, snap)

	// Remote path: full recomputation with the new metadata.
	remote, err := h.builder.BuildData(context.Background(), renamed, snap)
	require.NoError(t, err)

	// Identical computed state from either tier.
	assert.Equal(t, remote.Title, local.Title)
	assert.Equal(t, remote.Value, local.Value)
	assert.Equal(t, remote.Tag, local.Tag)
	assert.Equal(t, remote.Version, local.Version)
	assert.Equal(t, remote.State, local.State)
}

func TestMetadataLocalEquivalenceAcrossKinds(t *testing.T) {
	for _, original := range []*dashboard.Component{sumCard(), regionFigure(), ordersTable()} {
		original := original
		t.Run(string(original.Kind), func(t *testing.T) {
			h := newHarness(t, regionFilter(), original)
			snap := h.state.Snapshot()

			before, err := h.builder.BuildData(context.Background(), original, snap)
			require.NoError(t, err)

			renamed := *original
			renamed.Title = original.Title + " (renamed)"
			require.NoError(t, h.registry.Register(&renamed))

			local := h.builder.BuildMetadataLocal(&renamed, before, snap)
			remote, err := h.builder.BuildData(context.Background(), &renamed, snap)
			require.NoError(t, err)

			assert.Equal(t, remote.Title, local.Title)
			assert.Equal(t, remote.Value, local.Value)
			assert.Equal(t, remote.Series, local.Series)
			assert.Equal(t, remote.Columns, local.Columns)
			assert.Equal(t, remote.Rows, local.Rows)
			assert.Equal(t, remote.Tag, local.Tag)
			assert.Equal(t, remote.Version, local.Version)
			assert.Equal(t, remote.State, local.State)
			assert.Equal(t, remote.Warning, local.Warning)
		})
	}
}
