package engine

import (
	"context"
	"fmt"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// Session is one user's live view of one dashboard: its own filter
// state, guard, and scheduler over a per-session registry. The
// memoization cache is shared across sessions; filter state is not.
type Session struct {
	ID            string
	DashboardID   string
	DashboardName string

	registry  *dashboard.Registry
	state     *StateStore
	guard     *Guard
	builder   *PayloadBuilder
	scheduler *Scheduler
}

// NewSession assembles a session from its already-wired parts. The
// manager is the usual caller.
func NewSession(
	id string,
	dashboardID string,
	registry *dashboard.Registry,
	state *StateStore,
	guard *Guard,
	builder *PayloadBuilder,
	scheduler *Scheduler,
) *Session {
	return &Session{
		ID:          id,
		DashboardID: dashboardID,
		registry:    registry,
		state:       state,
		guard:       guard,
		builder:     builder,
		scheduler:   scheduler,
	}
}

// Bootstrap performs the first render: every filter echoes its seeded
// default and every data component is computed once. The data pass
// rides the navigation cascade, so it primes the memoization cache the
// same way a page entry would.
func (s *Session) Bootstrap(ctx context.Context) (*CascadeResult, error) {
	snap := s.state.Snapshot()
	for _, f := range s.registry.ListByKind(dashboard.KindFilter) {
		payload := s.builder.BuildFilter(f, snap)
		s.scheduler.apply(f.ID, snap.Version, payload)
	}

	return s.scheduler.Run(ctx, Event{Kind: v1.EventNavigation})
}

// HandleEvent validates and runs one external trigger through the
// cascade.
func (s *Session) HandleEvent(ctx context.Context, t *v1.TriggerEvent) (*CascadeResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Type == v1.EventMetadataChanged && t.Component != nil {
		if err := s.UpdateComponent(t.Component); err != nil {
			return nil, err
		}
	}
	return s.scheduler.Run(ctx, FromTrigger(t))
}

// UpdateComponent replaces a component definition, typically ahead of a
// metadata_changed trigger. Re-registration revalidates the binding.
func (s *Session) UpdateComponent(c *dashboard.Component) error {
	if _, err := s.registry.Get(c.ID); err != nil {
		return fmt.Errorf("update component %s: %w", c.ID, err)
	}
	return s.registry.Register(c)
}

// Components returns the last applied payload per component, ascending
// by component ID. This is what a reconnecting client renders from.
func (s *Session) Components() []*v1.RenderPayload {
	return s.scheduler.Components()
}

// Definition returns the session's current dashboard definition,
// including any metadata edits applied during the session.
func (s *Session) Definition() *dashboard.Dashboard {
	return &dashboard.Dashboard{
		ID:         s.DashboardID,
		Name:       s.DashboardName,
		Components: s.registry.All(),
	}
}

// Version returns the current filter snapshot version.
func (s *Session) Version() int64 {
	return s.state.Version()
}
