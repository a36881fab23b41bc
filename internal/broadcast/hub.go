// Package broadcast fans team snapshot updates out to connected dashboard
// clients over WebSocket. Delivery is best-effort: a client that cannot keep
// up is dropped and has to resynchronize via the REST endpoints.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventStatsUpdate is the event name carried by every snapshot push.
const EventStatsUpdate = "stats_update"

// Event is the envelope written to dashboard clients.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Marshal encodes an event payload into its wire form.
func Marshal(name string, data interface{}) ([]byte, error) {
	return json.Marshal(Event{Event: name, Data: data})
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

// SnapshotSource supplies the current state replayed to a freshly connected
// client before it starts receiving live updates.
type SnapshotSource func() [][]byte

// Hub owns the set of connected clients and the broadcast loop.
type Hub struct {
	upgrader  websocket.Upgrader
	snapshots SnapshotSource

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub; snapshots may be nil when there is nothing to replay.
func NewHub(snapshots SnapshotSource) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is an internal tool served from arbitrary hosts.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		snapshots:  snapshots,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run drives the hub until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			log.Debug().Int("clients", h.ClientCount()).Msg("Dashboard client connected")

		case c := <-h.unregister:
			h.drop(c)

		case message := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.RUnlock()

			for _, c := range targets {
				select {
				case c.send <- message:
				default:
					// Slow consumer: drop it rather than stall ingestion.
					log.Warn().Msg("Dropping slow dashboard client")
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Broadcast queues a message for every connected client. Never blocks; if the
// hub's queue is full the update is dropped and clients resynchronize later.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn().Msg("Broadcast queue full, dropping update")
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades an HTTP request to a WebSocket subscription and
// replays the current team snapshots to the new client.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	// Seed the send queue before registering so replayed snapshots precede
	// any live update.
	if h.snapshots != nil {
		for _, snapshot := range h.snapshots() {
			select {
			case c.send <- snapshot:
			default:
			}
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		// Hub already shut down; never leave the handler parked on register.
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Dashboard clients only listen; drain until the connection dies.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Dashboard client read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
