package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/cache"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/dashboard/storage"
	"github.com/lumen-lab/project-lumen/internal/dataset"
	"github.com/lumen-lab/project-lumen/internal/render"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

// ErrSessionNotFound is returned when a session ID is unknown or
// already closed.
var ErrSessionNotFound = errors.New("session not found")

// Options tunes per-session engine behavior. Zero values fall back to
// the package defaults.
type Options struct {
	GuardWindow   time.Duration
	ResolveTTL    time.Duration
	TagTTL        time.Duration
	RemoteWorkers int
}

// Manager owns the session table and the process-wide shared parts:
// the dataset catalog, the data layer, and the memoization cache.
// Filter state, guard state, and version counters are never shared
// across sessions.
type Manager struct {
	repo     storage.Repository
	catalog  *dataset.Catalog
	resolver resolve.Resolver
	tags     resolve.TagLookup
	cache    *cache.Cache
	notifier render.Notifier
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager with a fresh shared cache.
func NewManager(
	repo storage.Repository,
	catalog *dataset.Catalog,
	resolver resolve.Resolver,
	tags resolve.TagLookup,
	notifier render.Notifier,
	opts Options,
) *Manager {
	if notifier == nil {
		notifier = render.NopNotifier{}
	}
	if opts.GuardWindow == 0 {
		opts.GuardWindow = DefaultGuardWindow
	}
	return &Manager{
		repo:     repo,
		catalog:  catalog,
		resolver: resolver,
		tags:     tags,
		cache:    cache.New(),
		notifier: notifier,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open loads a dashboard definition, seeds a new session from its
// defaults, and runs the first render.
func (m *Manager) Open(ctx context.Context, dashboardID string) (*Session, *CascadeResult, error) {
	d, err := m.repo.Load(ctx, dashboardID)
	if err != nil {
		return nil, nil, fmt.Errorf("open dashboard %s: %w", dashboardID, err)
	}

	registry := dashboard.NewRegistry(m.catalog)
	if err := registry.Load(d); err != nil {
		return nil, nil, fmt.Errorf("open dashboard %s: %w", dashboardID, err)
	}

	state := NewStateStore()
	if err := state.Seed(registry.ListByKind(dashboard.KindFilter)); err != nil {
		return nil, nil, fmt.Errorf("open dashboard %s: %w", dashboardID, err)
	}

	sessionID := uuid.NewString()
	guard := NewGuard(m.opts.GuardWindow)
	builder := NewPayloadBuilder(registry, m.catalog, m.cache, m.resolver, m.tags, m.opts.ResolveTTL, m.opts.TagTTL)
	scheduler := NewScheduler(
		registry,
		NewGraph(registry, m.catalog),
		NewRouter(),
		builder,
		guard,
		state,
		m.opts.RemoteWorkers,
		func(p *v1.RenderPayload) { m.notifier.Notify(sessionID, p) },
	)

	session := NewSession(sessionID, d.ID, registry, state, guard, builder, scheduler)
	session.DashboardName = d.Name

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	result, err := session.Bootstrap(ctx)
	if err != nil {
		m.Close(sessionID)
		return nil, nil, fmt.Errorf("bootstrap session for dashboard %s: %w", dashboardID, err)
	}

	slog.Info("[Session] Opened",
		"session_id", sessionID,
		"dashboard_id", dashboardID,
		"components", len(d.Components),
	)
	return session, result, nil
}

// Get returns an open session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return s, nil
}

// Close drops a session. Filter state is discarded, never persisted.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		slog.Info("[Session] Closed", "session_id", sessionID)
	}
}

// Save writes a session's current dashboard definition back to the
// repository. Only the definition persists; live filter values do not.
func (m *Manager) Save(ctx context.Context, sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if err := m.repo.Save(ctx, s.Definition()); err != nil {
		return fmt.Errorf("save dashboard %s: %w", s.DashboardID, err)
	}
	slog.Info("[Session] Dashboard saved", "session_id", sessionID, "dashboard_id", s.DashboardID)
	return nil
}

// InvalidateDataset drops all cached resolutions and the display tag
// for one dataset. Called when the underlying entity is edited outside
// any session.
func (m *Manager) InvalidateDataset(datasetID string) {
	m.cache.InvalidatePrefix("resolve:" + datasetID + ":")
	m.cache.Invalidate(TagKey(datasetID))
}

// Sessions returns the number of open sessions.
func (m *Manager) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}
