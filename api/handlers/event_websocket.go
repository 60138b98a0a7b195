package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"go.uber.org/zap"
)

const (
	backlogSize      = 50
	clientBufferSize = 256
	pingInterval     = 30 * time.Second
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type eventMessage struct {
	slot domain.Slot
	data []byte
}

type eventClient struct {
	slot domain.Slot // empty = all slots
	send chan []byte
}

func (c *eventClient) wants(slot domain.Slot) bool {
	return c.slot == "" || c.slot == slot
}

// EventHub streams operation events to WebSocket clients. New clients get
// the most recent events first so a page reload does not lose context.
type EventHub struct {
	logger  *zap.Logger
	mu      sync.Mutex
	clients map[*eventClient]struct{}
	backlog []eventMessage
	closed  bool
}

// NewEventHub creates a new event hub
func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		logger:  log,
		clients: make(map[*eventClient]struct{}),
	}
}

// Broadcast sends ev to every interested client. A client that cannot keep
// up is disconnected rather than allowed to stall the others.
func (h *EventHub) Broadcast(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.backlog = append(h.backlog, eventMessage{slot: ev.Slot, data: data})
	if len(h.backlog) > backlogSize {
		h.backlog = h.backlog[len(h.backlog)-backlogSize:]
	}

	for client := range h.clients {
		if !client.wants(ev.Slot) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Dropping slow WebSocket client")
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// Clients returns the number of connected clients
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client; later broadcasts are ignored
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// HandleWebSocket handles GET /api/v1/events. The optional slot query
// parameter restricts the stream to one slot.
func (h *EventHub) HandleWebSocket(c *gin.Context) {
	slot := domain.Slot(c.Query("slot"))
	if slot != "" && !domain.ValidateSlot(slot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}

	client := &eventClient{slot: slot, send: make(chan []byte, clientBufferSize)}
	if !h.register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	defer h.unregister(client)

	h.logger.Info("WebSocket client connected",
		zap.String("slot", string(slot)),
		zap.String("remote_addr", c.Request.RemoteAddr))

	go h.writeLoop(conn, client)

	// Read until the client goes away; incoming messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// register adds client and queues the backlog for it
func (h *EventHub) register(client *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, msg := range h.backlog {
		if client.wants(msg.slot) {
			client.send <- msg.data
		}
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *EventHub) unregister(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *EventHub) writeLoop(conn *websocket.Conn, client *eventClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("Failed to send event", zap.Error(err))
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
