package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	dashstorage "github.com/lumen-lab/project-lumen/internal/dashboard/storage"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

type captureNotifier struct {
	mu       sync.Mutex
	payloads map[string][]*v1.RenderPayload
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{payloads: make(map[string][]*v1.RenderPayload)}
}

func (n *captureNotifier) Notify(sessionID string, p *v1.RenderPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.payloads[sessionID] = append(n.payloads[sessionID], p)
}

func (n *captureNotifier) count(sessionID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.payloads[sessionID])
}

func salesDashboard() *dashboard.Dashboard {
	return &dashboard.Dashboard{
		ID:   "dash-sales",
		Name: "Sales Overview",
		Components: []*dashboard.Component{
			regionFilter(), sumCard(), countCard(),
		},
	}
}

func newTestManager(t *testing.T, notifier *captureNotifier) (*Manager, *resolve.MemoryResolver) {
	t.Helper()

	repo := dashstorage.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), salesDashboard()))

	resolver := resolve.NewMemoryResolver()
	resolver.SetRows("orders", ordersRows())

	tags := resolve.NewMemoryTagStore(map[string]string{"orders": "Orders"})

	m := NewManager(repo, testCatalog(t), resolver, tags, notifier, Options{})
	return m, resolver
}

func TestManagerOpenBootstrapsSession(t *testing.T) {
	notifier := newCaptureNotifier()
	m, resolver := newTestManager(t, notifier)

	session, result, err := m.Open(context.Background(), "dash-sales")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "dash-sales", session.DashboardID)
	assert.Equal(t, 1, m.Sessions())

	// First render: both cards computed, one resolution (shared
	// fingerprint), filter echo delivered.
	assert.Len(t, result.Remote, 2)
	assert.Equal(t, int64(1), resolver.ResolveCalls())
	assert.Equal(t, 3, notifier.count(session.ID))

	held := session.Components()
	require.Len(t, held, 3)
	assert.Equal(t, "card-orders", held[0].ComponentID)
	assert.Equal(t, "card-revenue", held[1].ComponentID)
	assert.Equal(t, "flt-region", held[2].ComponentID)
}

func TestManagerOpenUnknownDashboard(t *testing.T) {
	m, _ := newTestManager(t, newCaptureNotifier())

	_, _, err := m.Open(context.Background(), "dash-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, dashboard.ErrDashboardNotFound)
	assert.Equal(t, 0, m.Sessions())
}

func TestManagerSessionsAreIsolated(t *testing.T) {
	m, _ := newTestManager(t, newCaptureNotifier())
	ctx := context.Background()

	s1, _, err := m.Open(ctx, "dash-sales")
	require.NoError(t, err)
	s2, _, err := m.Open(ctx, "dash-sales")
	require.NoError(t, err)
	require.NotEqual(t, s1.ID, s2.ID)

	_, err = s1.HandleEvent(ctx, &v1.TriggerEvent{
		Type:        v1.EventFilterChanged,
		ComponentID: "flt-region",
		Value:       &dashboard.FilterValue{Kind: dashboard.ValueMulti, Options: []string{"east"}},
	})
	require.NoError(t, err)

	// s1 moved, s2 did not.
	e1, _ := s1.state.Get("flt-region")
	e2, _ := s2.state.Get("flt-region")
	assert.False(t, e1.IsDefault)
	assert.True(t, e2.IsDefault)
	assert.Greater(t, s1.Version(), s2.Version())
}

func TestManagerSharedCacheAcrossSessions(t *testing.T) {
	m, resolver := newTestManager(t, newCaptureNotifier())
	ctx := context.Background()

	_, _, err := m.Open(ctx, "dash-sales")
	require.NoError(t, err)
	calls := resolver.ResolveCalls()

	// The second session opens with identical default predicates, so
	// its bootstrap rides the first session's cached resolution.
	_, _, err = m.Open(ctx, "dash-sales")
	require.NoError(t, err)
	assert.Equal(t, calls, resolver.ResolveCalls())
}

func TestManagerGetAndClose(t *testing.T) {
	m, _ := newTestManager(t, newCaptureNotifier())

	session, _, err := m.Open(context.Background(), "dash-sales")
	require.NoError(t, err)

	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)

	m.Close(session.ID)
	_, err = m.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerSavePersistsMetadataEdit(t *testing.T) {
	repo := dashstorage.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), salesDashboard()))

	resolver := resolve.NewMemoryResolver()
	resolver.SetRows("orders", ordersRows())
	m := NewManager(repo, testCatalog(t), resolver, resolve.NewMemoryTagStore(map[string]string{"orders": "Orders"}), nil, Options{})

	session, _, err := m.Open(context.Background(), "dash-sales")
	require.NoError(t, err)

	renamed := sumCard()
	renamed.Title = "Total Revenue"
	require.NoError(t, session.UpdateComponent(renamed))
	require.NoError(t, m.Save(context.Background(), session.ID))

	persisted, err := repo.Load(context.Background(), "dash-sales")
	require.NoError(t, err)
	assert.Equal(t, "Sales Overview", persisted.Name)

	var found bool
	for _, c := range persisted.Components {
		if c.ID == "card-revenue" {
			found = true
			assert.Equal(t, "Total Revenue", c.Title)
		}
	}
	assert.True(t, found)
}

func TestManagerInvalidateDataset(t *testing.T) {
	m, resolver := newTestManager(t, newCaptureNotifier())
	ctx := context.Background()

	session, _, err := m.Open(ctx, "dash-sales")
	require.NoError(t, err)
	calls := resolver.ResolveCalls()

	m.InvalidateDataset("orders")

	// The cached resolution is gone: the next navigation re-fetches.
	_, err = session.HandleEvent(ctx, &v1.TriggerEvent{Type: v1.EventNavigation, UserStateHash: "after-edit"})
	require.NoError(t, err)
	assert.Greater(t, resolver.ResolveCalls(), calls)
}

func TestSessionRejectsInvalidEvent(t *testing.T) {
	m, _ := newTestManager(t, newCaptureNotifier())

	session, _, err := m.Open(context.Background(), "dash-sales")
	require.NoError(t, err)

	_, err = session.HandleEvent(context.Background(), &v1.TriggerEvent{Type: v1.EventFilterChanged})
	assert.Error(t, err)
}

func TestSessionUpdateUnknownComponent(t *testing.T) {
	m, _ := newTestManager(t, newCaptureNotifier())

	session, _, err := m.Open(context.Background(), "dash-sales")
	require.NoError(t, err)

	err = session.UpdateComponent(stockCard())
	assert.ErrorIs(t, err, dashboard.ErrNotFound)
}
