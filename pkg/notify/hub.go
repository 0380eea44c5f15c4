// Package notify broadcasts index events to websocket subscribers. The
// Hub is a flat fan-out: every connected client receives every event.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shareloft/shareloft/pkg/infrastructure/logging"
)

// Message is the wire shape of one event
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub manages websocket subscribers and fans events out to them
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Message
	closed  bool
}

// NewHub creates an event hub
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	return &Hub{
		logger: logger.WithComponent("notify"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Message),
	}
}

// Publish sends an event to every connected client. Slow clients are
// skipped rather than blocking the caller.
func (h *Hub) Publish(event string, payload interface{}) {
	message := Message{
		Type:      event,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clientChan := range h.clients {
		select {
		case clientChan <- message:
		default:
			// Client channel full, skip
		}
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams events until the
// client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"error":  err.Error(),
			"remote": r.RemoteAddr,
		})
		return
	}

	clientChan := make(chan Message, 100)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = clientChan
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", map[string]interface{}{
		"remote": r.RemoteAddr,
	})

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[conn]; ok {
			delete(h.clients, conn)
			close(clientChan)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Outgoing events
	go func() {
		for msg := range clientChan {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	// Incoming messages are only read to detect disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Close disconnects all clients and stops accepting new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for conn, clientChan := range h.clients {
		close(clientChan)
		conn.Close()
		delete(h.clients, conn)
	}
}
