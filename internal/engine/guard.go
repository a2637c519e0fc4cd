package engine

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGuardWindow bounds how long two identical fingerprints count
// as one trigger. The upstream duplicate-trigger condition was never
// conclusively diagnosed, so this stays a plain config knob.
const DefaultGuardWindow = 200 * time.Millisecond

// maxSeenSources caps the last-seen table so a long-lived process with
// many distinct sources cannot grow it unbounded.
const maxSeenSources = 4096

type seenRecord struct {
	payloadHash string
	at          time.Time
}

// Guard suppresses recomputation for triggers that are provably
// equivalent to the previous one from the same source within a bounded
// time window. It never returns an error: on any internal problem it
// fails open and reports the trigger as novel. A missed optimization
// is acceptable, a missed update is not.
type Guard struct {
	window time.Duration

	mu       sync.Mutex
	lastSeen map[string]seenRecord

	lastNavHash string
	hasNav      bool

	nowFn func() time.Time
}

// NewGuard creates a guard with the given suppression window. A
// non-positive window disables exact-duplicate suppression entirely.
func NewGuard(window time.Duration) *Guard {
	return &Guard{
		window:   window,
		lastSeen: make(map[string]seenRecord),
		nowFn:    time.Now,
	}
}

// ShouldProcess reports whether the trigger is novel, updating the
// last-seen table when it is. Suppressed triggers do NOT refresh the
// table: the window stays anchored at the first occurrence, so a
// steady stream of duplicates cannot suppress forever.
func (g *Guard) ShouldProcess(fp Fingerprint) (novel bool) {
	// Fail open: correctness over performance.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Guard] Internal error, failing open", "panic", r, "source", fp.SourceID)
			novel = true
		}
	}()

	if fp.PayloadHash == "" {
		// Unhashable payload: always novel, and never recorded. Two
		// empty hashes are not evidence of equivalence.
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.window > 0 {
		if rec, ok := g.lastSeen[fp.SourceID]; ok {
			if rec.payloadHash == fp.PayloadHash && fp.Timestamp.Sub(rec.at) < g.window {
				return false
			}
		}
	}

	if len(g.lastSeen) >= maxSeenSources {
		g.pruneLocked(fp.Timestamp)
	}
	g.lastSeen[fp.SourceID] = seenRecord{payloadHash: fp.PayloadHash, at: fp.Timestamp}
	return true
}

// ShouldProcessNavigation applies the no-op-navigation rule: a
// navigation whose user-visible state hash matches the last processed
// navigation is suppressed regardless of elapsed time. The hash
// excludes volatile fields (auth tokens) by contract with the
// session/auth interface.
func (g *Guard) ShouldProcessNavigation(userStateHash string) bool {
	if userStateHash == "" {
		// No hash supplied: nothing to compare, process it.
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasNav && g.lastNavHash == userStateHash {
		return false
	}
	g.lastNavHash = userStateHash
	g.hasNav = true
	return true
}

// pruneLocked drops records older than the window. Called only when
// the table hits its cap; anything outside the window can never
// suppress again.
func (g *Guard) pruneLocked(now time.Time) {
	for source, rec := range g.lastSeen {
		if now.Sub(rec.at) >= g.window {
			delete(g.lastSeen, source)
		}
	}
}
