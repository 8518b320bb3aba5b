// Package ws streams committed exchange events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/condex/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Config carries the metadata sent to clients on connect.
type Config struct {
	Mode string
	// Channel is the bus channel carrying JSON-encoded domain.Event values.
	Channel   string
	StartedAt time.Time
	// Status, when set, is embedded in the hello message.
	Status func() any
	// AllowedOrigins restricts the upgrade. Empty allows every origin.
	AllowedOrigins []string
}

// Hub fans bus messages out to connected websocket clients, each with its
// own event filter.
type Hub struct {
	cfg        Config
	bus        domain.SignalBus
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	mu         sync.RWMutex
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	h := &Hub{
		cfg:        cfg,
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run subscribes to the event channel and serves registrations until ctx is
// cancelled. The subscription is in place before any client can register.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		close(h.done)
		return err
	}
	h.logger.InfoContext(ctx, "ws: subscribed", slog.String("channel", h.cfg.Channel))

	go h.forward(ctx, msgs)

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("clients", n))

		case data := <-h.broadcast:
			h.dispatch(data)
		}
	}
}

func (h *Hub) forward(ctx context.Context, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", h.cfg.Channel))
				return
			}
			select {
			case h.broadcast <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

// eventHeader is the part of an event the filters look at.
type eventHeader struct {
	Type       domain.EventType `json:"type"`
	ProposalID uint64           `json:"proposal_id"`
	Account    domain.Account   `json:"account"`
	Proposal   *struct {
		Proposer domain.Account `json:"proposer"`
	} `json:"proposal"`
}

func (h *Hub) dispatch(data []byte) {
	var hdr eventHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		h.logger.Warn("ws: undecodable event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(hdr) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping event for slow client", slog.String("type", string(hdr.Type)))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers a client that receives every
// event until it narrows its filter.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		types: []string{"*"},
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	c.hello()

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	types    []string
	account  domain.Account
	proposal uint64
}

// filterMsg replaces the client's filter. Types are glob patterns over event
// types; account and proposal_id narrow further when set.
type filterMsg struct {
	Action     string         `json:"action"`
	Types      []string       `json:"types"`
	Account    domain.Account `json:"account"`
	ProposalID uint64         `json:"proposal_id"`
}

func (c *client) wants(hdr eventHeader) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.proposal != 0 && c.proposal != hdr.ProposalID {
		return false
	}
	if c.account != "" && c.account != hdr.Account &&
		(hdr.Proposal == nil || hdr.Proposal.Proposer != c.account) {
		return false
	}
	for _, pattern := range c.types {
		if ok, _ := path.Match(pattern, string(hdr.Type)); ok {
			return true
		}
	}
	return false
}

func (c *client) apply(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		types := msg.Types
		if len(types) == 0 {
			types = []string{"*"}
		}
		for _, t := range types {
			if _, err := path.Match(t, ""); err != nil {
				c.hub.logger.Warn("ws: bad type pattern", slog.String("pattern", t))
				return
			}
		}
		c.types = types
		c.account = msg.Account
		c.proposal = msg.ProposalID
	case "unsubscribe":
		c.types = nil
	}
}

func (c *client) hello() {
	payload := map[string]any{
		"mode":           c.hub.cfg.Mode,
		"uptime_seconds": max(0, int64(time.Since(c.hub.cfg.StartedAt).Seconds())),
	}
	if c.hub.cfg.Status != nil {
		payload["status"] = c.hub.cfg.Status()
	}
	msg, err := json.Marshal(map[string]any{"type": "hello", "payload": payload})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg filterMsg
		if err := json.Unmarshal(message, &msg); err != nil || msg.Action == "" {
			continue
		}
		c.apply(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
