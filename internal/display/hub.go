// Package display pushes snapshots to browsers over websocket. The hub is a
// processor sink: every output tick is broadcast to the connected clients.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

var logf = monitoring.Tagged("display")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 16
)

// Message is the envelope written to clients.
type Message struct {
	Type string                `json:"type"`
	Data *watercolumn.Snapshot `json:"data"`
}

// Hub tracks connected clients. It implements watercolumn.Sink and
// http.Handler.
type Hub struct {
	upgrader websocket.Upgrader
	latest   func() *watercolumn.Snapshot

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub returns an empty hub. latest, if not nil, supplies the snapshot
// sent to a client as soon as it connects.
func NewHub(latest func() *watercolumn.Snapshot) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		latest:  latest,
		clients: make(map[string]*client),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Emit broadcasts the snapshot. Clients whose buffers are full are
// disconnected rather than allowed to stall the output tick.
func (h *Hub) Emit(_ context.Context, snap *watercolumn.Snapshot) error {
	msg, err := encode(snap)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logf("client %s too slow, disconnecting", id)
			h.removeLocked(id)
		}
	}
	return nil
}

func encode(snap *watercolumn.Snapshot) ([]byte, error) {
	b, err := json.Marshal(Message{Type: "snapshot", Data: snap})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot %d: %w", snap.Seq, err)
	}
	return b, nil
}

// ServeHTTP upgrades the request and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	if h.latest != nil {
		if snap := h.latest(); snap != nil {
			if msg, err := encode(snap); err == nil {
				c.send <- msg
			}
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	logf("client %s connected from %s", c.id, r.RemoteAddr)

	go c.writePump()
	go h.readPump(c)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.clients {
		h.removeLocked(id)
	}
}
