// Package live pushes inbox changes to browser websocket connections.
package live

import (
	"log/slog"
	"sync"

	"github.com/ashureev/castle-console/internal/metrics"
	"github.com/coder/websocket"
)

// Hub tracks active browser connections per agent and tab.
type Hub struct {
	mu      sync.RWMutex
	active  map[string]map[string]*websocket.Conn
	metrics *metrics.Metrics
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		active:  make(map[string]map[string]*websocket.Conn),
		metrics: m,
	}
}

// get returns the connection for a user and tab.
func (h *Hub) get(username, tabID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if tabs, ok := h.active[username]; ok {
		return tabs[tabID]
	}
	return nil
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, tabs := range h.active {
		n += len(tabs)
	}
	return n
}

// Register adds a connection. A previous connection for the same tab is
// closed.
func (h *Hub) Register(username, tabID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[username]; !exists {
		h.active[username] = make(map[string]*websocket.Conn)
	}

	if existing, exists := h.active[username][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "tab replaced")
	}

	h.active[username][tabID] = conn
	h.metrics.SetLiveConnections(h.countLocked())
	slog.Info("Inbox socket registered", "username", username, "tab_id", tabID)
}

// Unregister removes a connection if it is still the registered one.
func (h *Hub) Unregister(username, tabID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tabs, ok := h.active[username]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(h.active, username)
			}
			h.metrics.SetLiveConnections(h.countLocked())
			slog.Info("Inbox socket unregistered", "username", username, "tab_id", tabID)
		}
	}
}

// CloseAll closes every connection, as on logout or shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for username, tabs := range h.active {
		for tabID, conn := range tabs {
			_ = conn.Close(websocket.StatusNormalClosure, reason)
			slog.Info("Inbox socket closed", "username", username, "tab_id", tabID, "reason", reason)
		}
	}
	h.active = make(map[string]map[string]*websocket.Conn)
	h.metrics.SetLiveConnections(0)
}
