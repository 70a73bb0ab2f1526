package events

import (
	"sync"
	"time"

	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/gorilla/websocket"
)

// Event types pushed to subscribers.
const (
	TypeState    = "state"
	TypeProgress = "progress"
	TypeNotice   = "notice"
)

// Event is one state-change notification pushed to UI observers. Observers
// are read-only: nothing flows back from a subscriber into the engine.
type Event struct {
	Type      string                   `json:"type"`
	State     domain.ControllerState   `json:"state,omitempty"`
	Snapshot  *domain.ProgressSnapshot `json:"snapshot,omitempty"`
	Severity  string                   `json:"severity,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// Hub fans controller events out to websocket subscribers. All writes go
// through the hub under its lock: gorilla/websocket allows at most one
// concurrent writer per connection.
type Hub struct {
	mu    sync.Mutex
	conns []*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe adds a subscriber connection.
func (h *Hub) Subscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns = append(h.conns, conn)
}

// Unsubscribe removes a subscriber connection.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.conns {
		if c == conn {
			h.conns = append(h.conns[:i], h.conns[i+1:]...)
			break
		}
	}
}

// Broadcast sends the event to every subscriber. Write failures are left to
// the subscriber's read loop to detect and clean up.
func (h *Hub) Broadcast(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		_ = conn.WriteJSON(evt)
	}
}

// Send delivers one event to a single subscriber, serialized against
// broadcasts on the same connection.
func (h *Hub) Send(conn *websocket.Conn, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_ = conn.WriteJSON(evt)
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
