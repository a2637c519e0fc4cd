package render

import (
	"log/slog"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
)

// Notifier delivers applied render payloads to whatever is watching a
// session. Implementations must be safe for concurrent use: the remote
// tier emits from multiple goroutines.
type Notifier interface {
	Notify(sessionID string, payload *v1.RenderPayload)
}

// NopNotifier discards payloads. Used when no render surface is
// attached.
type NopNotifier struct{}

func (NopNotifier) Notify(string, *v1.RenderPayload) {}

// LogNotifier writes each payload to the structured log. Useful for
// local development without a websocket client.
type LogNotifier struct{}

func (LogNotifier) Notify(sessionID string, payload *v1.RenderPayload) {
	slog.Info("[Render] Payload",
		"session_id", sessionID,
		"component_id", payload.ComponentID,
		"kind", payload.Kind,
		"version", payload.Version,
		"state", payload.State,
	)
}
