// Package live pushes committed tournament events to websocket subscribers, one room per tournament.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
	eventBuffer    = 64
)

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	tournament uuid.UUID
}

// Hub implements service.Publisher. Run must be running for events to reach clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan service.Event
	done       chan struct{}

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]struct{}

	upgrader websocket.Upgrader
}

// NewHub accepts websocket handshakes from the given origins, or same-origin only when none are given.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan service.Event, eventBuffer),
		done:       make(chan struct{}),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		origins := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			origins[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[origin]
			return ok
		}
	}
	return h
}

// Publish never blocks the caller; events are dropped when the hub falls behind.
func (h *Hub) Publish(ev service.Event) {
	select {
	case h.broadcast <- ev:
	default:
		slog.Warn("live feed is full, dropping event", "type", ev.Type, "tournament_id", ev.TournamentID)
	}
}

// Run owns the rooms until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, room := range h.rooms {
				for c := range room {
					close(c.send)
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[c.tournament]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[c.tournament] = room
			}
			room[c] = struct{}{}
			n := len(room)
			h.mu.Unlock()
			slog.Debug("live client joined", "tournament_id", c.tournament, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.tournament]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	close(c.send)
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.tournament)
	}
}

func (h *Hub) deliver(ev service.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[ev.TournamentID]
	if !ok {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal live event", "error", err)
		return
	}
	for c := range room {
		select {
		case c.send <- msg:
		default:
			slog.Warn("live client too slow, disconnecting", "tournament_id", ev.TournamentID)
			h.remove(c)
		}
	}
}

// Clients reports the number of subscribers of a tournament.
func (h *Hub) Clients(tournamentID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tournamentID])
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	// Subscribers only listen; anything they send is discarded.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("live client read failed", "tournament_id", c.tournament, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("live client write failed", "tournament_id", c.tournament, "error", err)
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
