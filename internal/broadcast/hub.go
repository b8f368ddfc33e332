// Package broadcast fans typed messages out to all live client
// connections, isolating per-connection failures.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/models"
)

// Conn is one writable client connection. The hub is its only owner once
// registered; a failed write destroys it.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// FailureCallback is invoked once per connection dropped on write failure.
type FailureCallback func()

// Hub maintains the registry of live connections. Broadcast may be called
// concurrently from the router and the interrupt path; one lock serializes
// registry iteration and writes.
type Hub struct {
	mu        sync.Mutex
	conns     map[string]Conn
	onFailure FailureCallback
	onCount   func(n int)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// SetFailureCallback registers the dropped-connection counter hook.
func (h *Hub) SetFailureCallback(cb FailureCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFailure = cb
}

// SetCountCallback registers a hook observing the registry size.
func (h *Hub) SetCountCallback(cb func(n int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCount = cb
}

// Register adds a connection and returns its ID.
func (h *Hub) Register(conn Conn) string {
	id := uuid.New().String()
	h.mu.Lock()
	h.conns[id] = conn
	n := len(h.conns)
	cb := h.onCount
	h.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	logger.Info("Client connected (%d active)", n)
	return id
}

// Unregister removes and closes a connection; unknown IDs are a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	n := len(h.conns)
	cb := h.onCount
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close()
	if cb != nil {
		cb(n)
	}
	logger.Info("Client disconnected (%d active)", n)
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast writes one message to every registered connection. A write
// failure removes that connection and delivery continues to the rest.
func (h *Hub) Broadcast(msg models.Message) {
	data, err := models.EncodeMessage(msg)
	if err != nil {
		logger.Error("Failed to encode %s message: %v", msg.Kind(), err)
		return
	}

	h.mu.Lock()
	var dead []string
	for id, conn := range h.conns {
		if err := conn.WriteMessage(data); err != nil {
			logger.Warn("Dropping client after failed write: %v", err)
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		conn := h.conns[id]
		delete(h.conns, id)
		_ = conn.Close()
		if h.onFailure != nil {
			h.onFailure()
		}
	}
	n := len(h.conns)
	cb := h.onCount
	h.mu.Unlock()

	if len(dead) > 0 && cb != nil {
		cb(n)
	}
}

// Send writes one message to a single connection, dropping it on failure.
// The write happens under the same lock Broadcast writes under, so a
// connection never sees two writers at once.
func (h *Hub) Send(id string, msg models.Message) {
	data, err := models.EncodeMessage(msg)
	if err != nil {
		logger.Error("Failed to encode %s message: %v", msg.Kind(), err)
		return
	}

	h.mu.Lock()
	conn, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	failed := false
	if err := conn.WriteMessage(data); err != nil {
		logger.Warn("Dropping client after failed write: %v", err)
		delete(h.conns, id)
		_ = conn.Close()
		if h.onFailure != nil {
			h.onFailure()
		}
		failed = true
	}
	n := len(h.conns)
	cb := h.onCount
	h.mu.Unlock()

	if failed && cb != nil {
		cb(n)
	}
}

// CloseAll drops every connection, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, id)
	}
}
