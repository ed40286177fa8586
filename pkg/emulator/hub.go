package emulator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/realtime"
)

const (
	hubWriteTimeout = 10 * time.Second
	hubSendBuffer   = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is the emulated event channel. Clients join rooms and receive the
// events published to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	logger  *slog.Logger
}

type hubClient struct {
	conn  *websocket.Conn
	send  chan realtime.Message
	mu    sync.Mutex
	rooms map[string]bool
}

func (c *hubClient) joined(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[room]
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		logger:  logger,
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{
		conn:  conn,
		send:  make(chan realtime.Message, hubSendBuffer),
		rooms: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *hubClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		close(c.send)
		h.mu.Unlock()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd realtime.Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Room == "" {
			h.logger.Debug("ignored client frame", "data", string(data))
			continue
		}

		c.mu.Lock()
		switch cmd.Action {
		case realtime.ActionJoin:
			c.rooms[cmd.Room] = true
		case realtime.ActionLeave:
			delete(c.rooms, cmd.Room)
		}
		c.mu.Unlock()
		h.logger.Debug("room command", "action", cmd.Action, "room", cmd.Room)
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			_ = c.conn.Close()
			return
		}
	}
}

// Publish sends an event to every client in room. Clients whose buffer is
// full miss the event.
func (h *Hub) Publish(room, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal event", "event", event, "error", err)
		return
	}
	msg := realtime.Message{Event: event, Room: room, Data: raw}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.joined(room) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropped event for slow client", "event", event)
		}
	}
}

// Members returns the number of clients joined to room.
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for c := range h.clients {
		if c.joined(room) {
			n++
		}
	}
	return n
}

// Close disconnects every client with a going-away frame.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}
