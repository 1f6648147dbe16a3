package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is a single engine event pushed to presentation clients.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

// Hub fans engine events out to connected websocket clients. A slow or
// dead client is dropped rather than allowed to block the broadcast.
type Hub struct {
	logger    *zap.Logger
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates an event hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:    logger.Named("hub"),
		broadcast: make(chan []byte, 64),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel until the context is cancelled, then
// closes every client connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for broadcast. Events are dropped when the
// queue is full; the hub never backpressures the engine.
func (h *Hub) Publish(eventType string, payload any) {
	msg, err := json.Marshal(Event{Type: eventType, Payload: payload, Time: time.Now()})
	if err != nil {
		h.logger.Warn("Failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("Event queue full, dropping event", zap.String("type", eventType))
	}
}

// ServeWS upgrades an HTTP request and registers the connection. A read
// pump per client notices disconnects as they happen, so a dead client
// is reaped without waiting for the next broadcast write to fail.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.logger.Info("Event stream client connected", zap.String("remote", r.RemoteAddr))

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				delete(h.clients, conn)
				h.mu.Unlock()
				conn.Close()
				h.logger.Info("Event stream client disconnected", zap.String("remote", r.RemoteAddr))
				return
			}
		}
	}()
}
