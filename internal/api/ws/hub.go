package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/observability"
	"github.com/your-org/doorguard/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator consoles run on other origins
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	topic string // optional notification filter
}

type message struct {
	topic string // empty for status updates
	data  []byte
}

// Hub maintains active WebSocket clients and fans out status updates and
// notifications.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	lastStatus []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.lastStatus != nil {
				client.send <- h.lastStatus
			}
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "topic", client.topic)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			if msg.topic == "" {
				h.lastStatus = msg.data
			}
			for client := range h.clients {
				if msg.topic != "" && client.topic != "" && client.topic != msg.topic {
					continue
				}

				select {
				case client.send <- msg.data:
				default:
					// Client buffer full, disconnect
					delete(h.clients, client)
					close(client.send)
					observability.WSConnections.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastStatus sends a status indicator update to all connected clients.
func (h *Hub) BroadcastStatus(s models.Status) {
	st := dto.FromStatus(s)
	data, err := json.Marshal(dto.WSMessage{Type: dto.WSTypeStatus, Status: &st})
	if err != nil {
		slog.Error("marshal ws status", "error", err)
		return
	}
	select {
	case h.broadcast <- message{data: data}:
	case <-h.done:
	}
}

// Publish delivers n to clients subscribed to its topic or to all topics.
func (h *Hub) Publish(ctx context.Context, n models.Notification) error {
	nr := dto.FromNotification(n)
	data, err := json.Marshal(dto.WSMessage{Type: dto.WSTypeNotification, Topic: n.Topic, Notification: &nr})
	if err != nil {
		return fmt.Errorf("marshal ws notification: %w", err)
	}

	select {
	case h.broadcast <- message{topic: n.Topic, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return fmt.Errorf("ws hub stopped")
	}
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:  conn,
		send:  make(chan []byte, 64),
		topic: c.Query("topic"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
