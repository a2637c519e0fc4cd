package engine

import (
	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// Tier classifies how a cascade edge executes.
type Tier string

const (
	// TierLocal resolves purely from already-held session state:
	// no data-layer round trip, no observable latency.
	TierLocal Tier = "local"

	// TierRemote requires re-querying the data layer.
	TierRemote Tier = "remote"
)

// Router decides, per cascade edge, whether a transition is local or
// remote. The classification rule of thumb: pure presentation state is
// local; anything that changes which rows are aggregated or displayed
// is remote. The two tiers share one payload builder for overlapping
// inputs, which keeps them logically equivalent without runtime
// re-verification.
type Router struct{}

// NewRouter creates a router.
func NewRouter() *Router {
	return &Router{}
}

// Classify returns the tier for one (event, component) edge. hasLast
// reports whether a previous successful payload exists for the
// component: a metadata edit can be applied locally only when there is
// a payload to re-dress.
func (r *Router) Classify(e Event, c *dashboard.Component, hasLast bool) Tier {
	// Filter controls echo session state; they never fetch.
	if c.Kind == dashboard.KindFilter {
		return TierLocal
	}

	// Display metadata edits leave the aggregated rows untouched.
	if e.Kind == v1.EventMetadataChanged && hasLast {
		return TierLocal
	}

	return TierRemote
}
