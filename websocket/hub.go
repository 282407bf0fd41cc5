package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

// Hub pushes notifications to users with an open websocket. One connection per
// user is kept; a newer connection replaces the older one.
type Hub struct {
	clients    map[uuid.UUID]Conn
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.Notification
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]Conn),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.Notification, 256),
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Notify queues n for delivery. Users without a connection simply miss the push.
func (h *Hub) Notify(ctx context.Context, n models.Notification) error {
	select {
	case h.broadcast <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			slog.Info("websocket client registered", "user_id", client.UserID)
			h.mu.Lock()
			h.clients[client.UserID] = client.Conn
			h.mu.Unlock()
		case client := <-h.unregister:
			slog.Info("websocket client unregistered", "user_id", client.UserID)
			h.mu.Lock()
			if conn, ok := h.clients[client.UserID]; ok && conn == client.Conn {
				delete(h.clients, client.UserID)
			}
			h.mu.Unlock()
		case n := <-h.broadcast:
			h.mu.RLock()
			conn, ok := h.clients[n.UserID]
			h.mu.RUnlock()
			if !ok {
				continue
			}
			if err := conn.WriteJSON(n); err != nil {
				slog.Error("error pushing notification", "user_id", n.UserID, "error", err)
				conn.Close()
				h.mu.Lock()
				if current, ok := h.clients[n.UserID]; ok && current == conn {
					delete(h.clients, n.UserID)
				}
				h.mu.Unlock()
			}
		}
	}
}

// Handler serves one websocket connection. The user id is put in Locals by the
// upgrade route after JWT validation.
func (h *Hub) Handler() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		userID, ok := c.Locals("user_id").(uuid.UUID)
		if !ok {
			c.Close()
			return
		}
		client := &Client{UserID: userID, Conn: c}
		h.Register(client)
		defer h.Unregister(client)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}
}
