package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowforge/core/internal/logger"
)

// WebSocketHub fans Bus events out to connected dashboard clients, each
// subscribed to one pub/sub channel (workflow:<slug>, execution:<id>, or
// epic:<id>). Grounded on the teacher's
// internal/application/observer.WebSocketHub, generalized from an
// execution-id-keyed broadcast to the channel-addressed model of
// spec.md §6.4.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan Event
}

type wsClient struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	channel string
}

// NewWebSocketHub starts a hub's dispatch loop in the background.
func NewWebSocketHub() *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan Event, 256),
	}
	go h.run()
	return h
}

func (h *WebSocketHub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Default().Error("eventbus: marshal websocket event failed", "error", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if c.channel != event.Channel {
					continue
				}
				select {
				case c.send <- payload:
				default:
					logger.Default().Warn("eventbus: websocket client send buffer full, dropping", "client_id", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Name implements Subscriber.
func (h *WebSocketHub) Name() string { return "websocket" }

// Filter implements Subscriber; the hub itself wants every event and
// filters per-client on channel at broadcast time.
func (h *WebSocketHub) Filter() Filter { return nil }

// OnEvent implements Subscriber by queuing event for dispatch to
// matching clients.
func (h *WebSocketHub) OnEvent(ctx context.Context, event Event) error {
	select {
	case h.broadcast <- event:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades conn into a tracked client subscribed to channel and
// blocks, pumping messages, until the connection closes. Run it in its
// own goroutine per accepted connection.
func (h *WebSocketHub) Serve(conn *websocket.Conn, channel string) {
	c := &wsClient{
		id:      conn.RemoteAddr().String(),
		conn:    conn,
		send:    make(chan []byte, 256),
		channel: channel,
	}
	h.register <- c

	done := make(chan struct{})
	go h.readPump(c, done)
	h.writePump(c)
	<-done
}

func (h *WebSocketHub) readPump(c *wsClient, done chan struct{}) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
		close(done)
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writePump(c *wsClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
