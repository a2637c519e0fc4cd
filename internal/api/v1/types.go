package v1

import (
	"fmt"
	"time"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

// EventType enumerates the external triggers a session reacts to.
type EventType string

const (
	EventFilterChanged   EventType = "filter_changed"
	EventResetAll        EventType = "reset_all"
	EventNavigation      EventType = "navigation"
	EventMetadataChanged EventType = "metadata_changed"
)

// TriggerEvent is the wire shape of one external trigger submitted to
// a session.
type TriggerEvent struct {
	Type        EventType              `json:"type"`
	ComponentID string                 `json:"component_id,omitempty"`
	Value       *dashboard.FilterValue `json:"value,omitempty"`

	// Component carries the edited definition for metadata_changed
	// events. Other event types leave it unset.
	Component *dashboard.Component `json:"component,omitempty"`

	// UserStateHash is supplied by the session/auth layer and derives
	// from session identity and active dashboard only, never from
	// volatile fields like refreshed auth tokens.
	UserStateHash string `json:"user_state_hash,omitempty"`

	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// Validate ensures the event carries the fields its type requires.
func (e *TriggerEvent) Validate() error {
	switch e.Type {
	case EventFilterChanged:
		if e.ComponentID == "" {
			return fmt.Errorf("filter_changed requires component_id")
		}
		if e.Value == nil {
			return fmt.Errorf("filter_changed requires value")
		}
	case EventMetadataChanged:
		if e.ComponentID == "" {
			return fmt.Errorf("metadata_changed requires component_id")
		}
		if e.Component != nil && e.Component.ID != e.ComponentID {
			return fmt.Errorf("component definition id %q does not match component_id %q", e.Component.ID, e.ComponentID)
		}
	case EventResetAll, EventNavigation:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// PayloadState marks whether a render payload is current or a held-over
// previous value after a remote failure.
type PayloadState string

const (
	PayloadOK    PayloadState = "ok"
	PayloadStale PayloadState = "stale"
)

// RenderPayload is what the engine emits per component whose computed
// state changed. Local-tier and remote-tier emissions share this shape
// exactly; only latency differs.
type RenderPayload struct {
	ComponentID string         `json:"component_id"`
	Kind        dashboard.Kind `json:"kind"`
	Title       string         `json:"title,omitempty"`

	// Version of the filter snapshot this payload was computed from.
	Version int64 `json:"version"`

	// Tag is the resolved display name of the bound dataset.
	Tag string `json:"tag,omitempty"`

	// Card: the single aggregate value (decimal rendered as string).
	Value string `json:"value,omitempty"`

	// Figure: one aggregate per group.
	Series map[string]string `json:"series,omitempty"`

	// Table.
	Columns []string      `json:"columns,omitempty"`
	Rows    []resolve.Row `json:"rows,omitempty"`

	// Filter echo.
	FilterValue *dashboard.FilterValue `json:"filter_value,omitempty"`
	IsDefault   bool                   `json:"is_default,omitempty"`

	State PayloadState `json:"state"`

	// Warning is set alongside a stale state; it never blocks the page.
	Warning string `json:"warning,omitempty"`
}

// Clone returns a deep enough copy for safe cross-goroutine emission.
func (p *RenderPayload) Clone() *RenderPayload {
	copy := *p
	if p.FilterValue != nil {
		fv := *p.FilterValue
		copy.FilterValue = &fv
	}
	if p.Series != nil {
		copy.Series = make(map[string]string, len(p.Series))
		for k, v := range p.Series {
			copy.Series[k] = v
		}
	}
	if p.Columns != nil {
		copy.Columns = append([]string(nil), p.Columns...)
	}
	if p.Rows != nil {
		copy.Rows = append([]resolve.Row(nil), p.Rows...)
	}
	return &copy
}
