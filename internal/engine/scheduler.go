package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// DefaultRemoteWorkers bounds concurrent data-layer fetches per cascade.
const DefaultRemoteWorkers = 8

// CascadeResult reports what one trigger did.
type CascadeResult struct {
	// Suppressed is true when the guard rejected the trigger; nothing
	// else in the result is populated.
	Suppressed bool `json:"suppressed"`

	// Version of the filter snapshot the cascade executed against.
	Version int64 `json:"version"`

	// Local and Remote list the applied payloads per tier, in
	// application order.
	Local  []*v1.RenderPayload `json:"local,omitempty"`
	Remote []*v1.RenderPayload `json:"remote,omitempty"`

	// Failed maps component ID to the warning shown alongside its
	// held-over stale payload.
	Failed map[string]string `json:"failed,omitempty"`

	// Discarded lists components whose recomputation finished but was
	// superseded by a newer version before it could apply.
	Discarded []string `json:"discarded,omitempty"`
}

// EmitFunc receives each applied payload, in order: all local-tier
// payloads for an event are emitted before any remote-tier one.
type EmitFunc func(*v1.RenderPayload)

// Scheduler orchestrates one session's cascades: guard check, affected
// set, tier partition, local execution, bounded remote fan-out, and the
// version-based last-write-wins application rule. It consumes exactly
// one AffectedBy result per external event, so no component can be
// double-fired through chained handlers.
type Scheduler struct {
	registry *dashboard.Registry
	graph    *Graph
	router   *Router
	builder  *PayloadBuilder
	guard    *Guard
	state    *StateStore

	workers int
	emit    EmitFunc
	nowFn   func() time.Time

	mu       sync.Mutex
	applied  map[string]int64            // component → version of last applied payload
	inflight map[string]int64            // component → highest version being computed
	last     map[string]*v1.RenderPayload // component → last successful payload
}

// NewScheduler creates a scheduler. emit may be nil when no render
// layer is attached (tests that only inspect results).
func NewScheduler(
	registry *dashboard.Registry,
	graph *Graph,
	router *Router,
	builder *PayloadBuilder,
	guard *Guard,
	state *StateStore,
	workers int,
	emit EmitFunc,
) *Scheduler {
	if workers <= 0 {
		workers = DefaultRemoteWorkers
	}
	if emit == nil {
		emit = func(*v1.RenderPayload) {}
	}
	return &Scheduler{
		registry: registry,
		graph:    graph,
		router:   router,
		builder:  builder,
		guard:    guard,
		state:    state,
		workers:  workers,
		emit:     emit,
		nowFn:    time.Now,
		applied:  make(map[string]int64),
		inflight: make(map[string]int64),
		last:     make(map[string]*v1.RenderPayload),
	}
}

// Run executes the cascade for one external event.
func (s *Scheduler) Run(ctx context.Context, e Event) (*CascadeResult, error) {
	// A metadata trigger is identified by the definition it renders;
	// without it, two different edits inside the guard window would
	// hash identically and the second would be lost.
	if e.Kind == v1.EventMetadataChanged && e.Component == nil {
		if c, err := s.registry.Get(e.ComponentID); err == nil {
			e.Component = c
		}
	}

	// 1. Novelty check before any mutation.
	fp := NewFingerprint(e, s.nowFn())
	if e.Kind == v1.EventNavigation && !s.guard.ShouldProcessNavigation(e.UserStateHash) {
		slog.Debug("[Cascade] No-op navigation suppressed", "source", fp.SourceID)
		return &CascadeResult{Suppressed: true, Version: s.state.Version()}, nil
	}
	if !s.guard.ShouldProcess(fp) {
		slog.Debug("[Cascade] Duplicate trigger suppressed", "source", fp.SourceID)
		return &CascadeResult{Suppressed: true, Version: s.state.Version()}, nil
	}

	// 2. Accept the mutation; the version bump is what downstream
	// last-write-wins keys off.
	var version int64
	var err error
	switch e.Kind {
	case v1.EventFilterChanged:
		version, err = s.state.Apply(e.ComponentID, e.Value)
		if err != nil {
			return nil, err
		}
	case v1.EventResetAll:
		version = s.state.ResetAll()
	default:
		version = s.state.Touch()
	}

	// 3. One affected set per event.
	affected, err := s.graph.AffectedBy(e)
	if err != nil {
		return nil, err
	}
	snap := s.state.Snapshot()

	result := &CascadeResult{Version: snap.Version, Failed: make(map[string]string)}

	// 4. Partition by tier.
	var local, remote []*dashboard.Component
	for _, id := range affected {
		c, err := s.registry.Get(id)
		if err != nil {
			// The component vanished between derivation and execution;
			// its siblings are unaffected.
			result.Failed[id] = "component no longer registered"
			continue
		}
		if s.router.Classify(e, c, s.hasLast(id)) == TierLocal {
			local = append(local, c)
		} else {
			remote = append(remote, c)
		}
	}

	// 5. Local partition first: its updates must be visible before any
	// remote update for the same event.
	for _, c := range local {
		var payload *v1.RenderPayload
		if c.Kind == dashboard.KindFilter {
			payload = s.builder.BuildFilter(c, snap)
		} else {
			payload = s.builder.BuildMetadataLocal(c, s.lastOf(c.ID), snap)
		}
		if s.apply(c.ID, snap.Version, payload) {
			result.Local = append(result.Local, payload)
		}
	}

	// A metadata edit may have renamed the displayed entity; force the
	// next tag resolution to refetch.
	if e.Kind == v1.EventMetadataChanged {
		for _, c := range remote {
			s.builder.InvalidateTag(c.Binding.DatasetID)
		}
	}

	// 6. Remote partition: one batched tag priming, then bounded
	// fan-out with at most one in-flight recomputation per component.
	s.builder.PrimeTags(ctx, distinctDatasets(remote))

	var resultMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, c := range remote {
		if !s.claim(c.ID, snap.Version) {
			// An equal-or-newer recomputation is already outstanding;
			// its application will cover this version.
			continue
		}

		component := c
		g.Go(func() error {
			payload, buildErr := s.builder.BuildData(gctx, component, snap)
			s.release(component.ID, snap.Version)

			resultMu.Lock()
			defer resultMu.Unlock()

			if buildErr != nil {
				// Partial failure: this component holds its previous
				// good render with a non-blocking warning; siblings
				// complete normally.
				slog.Warn("[Cascade] Remote recomputation failed",
					"component_id", component.ID,
					"version", snap.Version,
					"error", buildErr,
				)
				result.Failed[component.ID] = buildErr.Error()
				if stale := s.staleOf(component, snap.Version); stale != nil {
					s.emit(stale)
				}
				return nil
			}

			if s.apply(component.ID, snap.Version, payload) {
				result.Remote = append(result.Remote, payload)
			} else {
				// Superseded while in flight. The fetch still warmed
				// the cache; only the application is discarded.
				result.Discarded = append(result.Discarded, component.ID)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Workers never return errors; only context cancellation
		// surfaces here.
		return result, err
	}

	sort.Slice(result.Remote, func(i, j int) bool {
		return result.Remote[i].ComponentID < result.Remote[j].ComponentID
	})
	sort.Strings(result.Discarded)

	slog.Info("[Cascade] Complete",
		"source", fp.SourceID,
		"version", version,
		"local", len(result.Local),
		"remote", len(result.Remote),
		"failed", len(result.Failed),
	)
	return result, nil
}

// apply installs a payload under the last-write-wins rule: only a
// strictly newer version than the last applied one may land, regardless
// of arrival order. Returns whether the payload was applied (and
// emitted).
func (s *Scheduler) apply(componentID string, version int64, payload *v1.RenderPayload) bool {
	s.mu.Lock()
	if version <= s.applied[componentID] {
		s.mu.Unlock()
		return false
	}
	s.applied[componentID] = version
	s.last[componentID] = payload.Clone()
	s.mu.Unlock()

	s.emit(payload)
	return true
}

// claim records an in-flight recomputation. It fails when an
// equal-or-newer version is already outstanding or already applied.
func (s *Scheduler) claim(componentID string, version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version <= s.applied[componentID] {
		return false
	}
	if current, ok := s.inflight[componentID]; ok && version <= current {
		return false
	}
	s.inflight[componentID] = version
	return true
}

// release clears the in-flight record unless a newer claim replaced it.
func (s *Scheduler) release(componentID string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.inflight[componentID]; ok && current == version {
		delete(s.inflight, componentID)
	}
}

func (s *Scheduler) hasLast(componentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.last[componentID]
	return ok
}

func (s *Scheduler) lastOf(componentID string) *v1.RenderPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.last[componentID]; ok {
		return p.Clone()
	}
	return nil
}

// staleOf builds the held-over payload shown while a component is in
// the StaleData state. Returns nil when a newer payload already applied
// (fresher data is on screen; no point announcing staleness).
func (s *Scheduler) staleOf(c *dashboard.Component, failedVersion int64) *v1.RenderPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	if failedVersion <= s.applied[c.ID] {
		return nil
	}

	warning := fmt.Sprintf("data may be out of date (refresh for version %d failed)", failedVersion)
	if last, ok := s.last[c.ID]; ok {
		stale := last.Clone()
		stale.State = v1.PayloadStale
		stale.Warning = warning
		// The held payload is now the stale one. A later local
		// re-dress (metadata edit) must carry the marker forward, not
		// resurrect the pre-failure OK state.
		s.last[c.ID] = stale.Clone()
		return stale
	}

	// Nothing ever rendered: emit an empty stale shell so the
	// component can show its error indicator.
	return &v1.RenderPayload{
		ComponentID: c.ID,
		Kind:        c.Kind,
		Title:       c.Title,
		State:       v1.PayloadStale,
		Warning:     warning,
	}
}

// Components returns the last successful payload per component in
// ascending ID order.
func (s *Scheduler) Components() []*v1.RenderPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloads := make([]*v1.RenderPayload, 0, len(s.last))
	for _, p := range s.last {
		payloads = append(payloads, p.Clone())
	}
	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].ComponentID < payloads[j].ComponentID
	})
	return payloads
}

func distinctDatasets(components []*dashboard.Component) []string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range components {
		if !seen[c.Binding.DatasetID] {
			seen[c.Binding.DatasetID] = true
			ids = append(ids, c.Binding.DatasetID)
		}
	}
	sort.Strings(ids)
	return ids
}
