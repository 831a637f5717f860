// Package ws provides a lightweight WebSocket pub/sub hub. Components
// broadcast JSON events through the hub and every connected client receives
// them in real time. Each client gets its own send queue; a client that
// cannot keep up is dropped rather than allowed to stall the broadcast path.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueLen  = 64
	writeDeadline = 3 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 20 * time.Second
)

// client is one connected WebSocket peer with its buffered outbound queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast messages out to all connected clients. Registration,
// unregistration, and broadcast all pass through channels, so the hub
// goroutine is the only one touching the client set.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	upgrader   websocket.Upgrader
}

// NewHub allocates a hub. Call Run in a goroutine to start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client, 8),
		unregister: make(chan *client, 8),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Queue full: the client is too slow, cut it loose.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// BroadcastJSON marshals v and queues it for delivery to all clients. When
// the broadcast channel is full the message is dropped rather than blocking
// the caller.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- b:
	default:
	}
}

// Handler returns an http.Handler that upgrades requests to WebSocket
// connections and registers them with the hub.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		c := &client{conn: conn, send: make(chan []byte, sendQueueLen)}
		h.register <- c

		go c.writeLoop()
		go c.readLoop(h)
	})
}

// writeLoop drains the send queue to the connection and handles keepalive
// pings. It exits when the queue is closed.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames, resets the read deadline on pongs, and
// unregisters the client when the connection dies.
func (c *client) readLoop(h *Hub) {
	defer func() { h.unregister <- c }()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
