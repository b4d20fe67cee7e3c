package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/position"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// FeedMessage is one message on the websocket feed.
type FeedMessage struct {
	Type      string                       `json:"type"` // event | frame
	Event     *playback.Event              `json:"event,omitempty"`
	Time      time.Time                    `json:"time"`
	Positions map[string]position.Position `json:"positions,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans playback events and visual frames out to websocket clients.
// Frames carry positions in the visual (Y-up) frame.
type Hub struct {
	orch *playback.Orchestrator
	log  logging.Logger

	mu          sync.RWMutex
	clients     map[string]*client
	unsubscribe func()
}

// NewHub creates a hub fed by orch. Events are forwarded from creation
// until Run returns.
func NewHub(orch *playback.Orchestrator, log logging.Logger) *Hub {
	h := &Hub{orch: orch, log: logging.OrNoop(log), clients: make(map[string]*client)}
	h.unsubscribe = orch.Subscribe(func(ev playback.Event) {
		h.broadcast(FeedMessage{Type: "event", Event: &ev, Time: ev.Time})
	})
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run sends the orchestrator's latest frame at rateHz until ctx is
// cancelled, then disconnects every client. The visual feed never ticks the
// orchestrator.
func (h *Hub) Run(ctx context.Context, rateHz float64) {
	defer h.unsubscribe()

	if rateHz <= 0 {
		rateHz = 15
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			h.broadcast(visualFrame(h.orch.LastFrame()))
		}
	}
}

func visualFrame(f playback.Frame) FeedMessage {
	out := make(map[string]position.Position, len(f.Positions))
	for id, p := range f.Positions {
		out[id] = position.ToVisual(p)
	}
	return FeedMessage{Type: "frame", Time: f.Time, Positions: out}
}

// broadcast queues msg for every client. A client whose queue is full
// misses the message.
func (h *Hub) broadcast(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error(context.Background(), "feed message encode failed", logging.Err(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info(r.Context(), "feed client connected", logging.String("client_id", c.id), logging.Int("clients", n))

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards input and unregisters the client when the connection
// closes.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		close(c.send)
		h.log.Info(context.Background(), "feed client disconnected", logging.String("client_id", c.id), logging.Int("clients", n))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range clients {
		close(c.send)
	}
}
