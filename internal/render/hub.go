package render

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
)

// subscriberBuffer bounds queued payloads per connection. A client that
// cannot drain its queue is disconnected rather than allowed to stall
// the cascade.
const subscriberBuffer = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
}

type subscriber struct {
	conn *websocket.Conn
	send chan *v1.RenderPayload
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Hub fans applied render payloads out to websocket subscribers,
// keyed by session. It implements Notifier, so the engine emits into
// it directly.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*subscriber]struct{}),
	}
}

// Notify queues the payload for every subscriber of the session. A
// full subscriber queue drops the connection; the client re-syncs from
// the components endpoint on reconnect.
func (h *Hub) Notify(sessionID string, payload *v1.RenderPayload) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.send <- payload:
		default:
			slog.Warn("[Render] Subscriber queue full, disconnecting", "session_id", sessionID)
			h.remove(sessionID, sub)
		}
	}
}

// Serve upgrades the request and streams render payloads for the
// session until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "session_id", sessionID, "error", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan *v1.RenderPayload, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*subscriber]struct{})
	}
	h.sessions[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	slog.Info("[Render] Websocket client connected", "session_id", sessionID)

	go h.writeLoop(sessionID, sub)

	// Read loop: the protocol is push-only, so incoming frames are
	// discarded; reading is still required to observe close frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			slog.Info("[Render] Websocket client disconnected", "session_id", sessionID, "error", err.Error())
			break
		}
	}
	h.remove(sessionID, sub)
}

func (h *Hub) writeLoop(sessionID string, sub *subscriber) {
	for {
		select {
		case payload := <-sub.send:
			if err := sub.conn.WriteJSON(payload); err != nil {
				slog.Warn("[Render] Failed to write payload", "session_id", sessionID, "error", err)
				h.remove(sessionID, sub)
				return
			}
		case <-sub.done:
			return
		}
	}
}

// CloseSession disconnects every subscriber of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	subs := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// Subscribers returns the current subscriber count for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.sessions[sessionID])
}

func (h *Hub) remove(sessionID string, sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.sessions[sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()

	sub.close()
}
