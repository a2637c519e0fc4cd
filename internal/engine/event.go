package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// Event is one external trigger entering the engine.
type Event struct {
	Kind        v1.EventType
	ComponentID string
	Value       dashboard.FilterValue // filter_changed only

	// Component is the definition a metadata_changed trigger renders.
	// It participates in the fingerprint: two different edits to the
	// same component inside the guard window are distinct triggers.
	Component *dashboard.Component

	// UserStateHash comes from the session/auth interface. Token
	// refreshes must not change it.
	UserStateHash string

	OccurredAt time.Time
}

// FromTrigger converts the wire event into the engine's form.
func FromTrigger(t *v1.TriggerEvent) Event {
	e := Event{
		Kind:          t.Type,
		ComponentID:   t.ComponentID,
		Component:     t.Component,
		UserStateHash: t.UserStateHash,
		OccurredAt:    t.OccurredAt,
	}
	if t.Value != nil {
		e.Value = *t.Value
	}
	return e
}

// SourceID identifies the reactive unit a trigger originates from.
// Fingerprints from different sources never suppress each other.
func (e Event) SourceID() string {
	if e.ComponentID != "" {
		return string(e.Kind) + ":" + e.ComponentID
	}
	return string(e.Kind)
}

// Fingerprint is the compact identity of one trigger, used by the
// deduplication guard.
type Fingerprint struct {
	SourceID    string
	PayloadHash string
	Timestamp   time.Time
}

// NewFingerprint builds a trigger fingerprint. The payload hash covers
// the fields that make two triggers logically identical; an empty hash
// (canonicalization failed) makes the fingerprint always novel, so
// hashing problems degrade to missed optimizations, never missed
// updates.
func NewFingerprint(e Event, now time.Time) Fingerprint {
	fp := Fingerprint{
		SourceID:  e.SourceID(),
		Timestamp: now,
	}

	payload, err := json.Marshal(struct {
		Value         dashboard.FilterValue `json:"value"`
		Component     *dashboard.Component  `json:"component,omitempty"`
		UserStateHash string                `json:"user_state_hash"`
	}{e.Value, e.Component, e.UserStateHash})
	if err != nil {
		return fp
	}

	sum := sha256.Sum256(payload)
	fp.PayloadHash = hex.EncodeToString(sum[:])
	return fp
}
