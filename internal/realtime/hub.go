package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"skillconnect/internal/metrics"
	"skillconnect/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	snapshotWait   = 5 * time.Second
)

// Outgoing frame types.
const (
	TypeEvent        = "event"
	TypeSnapshot     = "snapshot"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

// Client commands.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// SnapshotSource authorizes a subscription and returns the channel's current state.
// It returns a domain error when the user may not subscribe.
type SnapshotSource interface {
	ChannelSnapshot(ctx context.Context, userID int64, channel string) (interface{}, error)
}

// Command is a client to server frame.
type Command struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Frame is a server to client frame.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Options struct {
	PingInterval   time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

// Hub tracks websocket clients and their channel subscriptions.
type Hub struct {
	source   SnapshotSource
	logger   *zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]map[*client]struct{}
	clients  map[*client]struct{}
	closed   bool
}

func NewHub(source SnapshotSource, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}

	h := &Hub{
		source:   source,
		logger:   logger,
		opts:     opts,
		channels: make(map[string]map[*client]struct{}),
		clients:  make(map[*client]struct{}),
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
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades an authenticated request and runs the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, claims *models.Claims) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan Frame, h.opts.SendBuffer),
		userID:  claims.UserID,
		isAdmin: claims.Role == models.RoleAdmin,
		subs:    make(map[string]struct{}),
		pending: make(map[string][]Frame),
	}

	if !h.register(c) {
		_ = conn.Close()
		return
	}
	metrics.ConnectionOpened()
	h.logger.Debug().Str("client_id", c.id).Int64("user_id", c.userID).Msg("websocket connected")

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister removes c everywhere and closes its send queue once.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for ch := range c.subs {
		h.removeSub(ch, c)
	}
	for ch := range c.pending {
		h.removeSub(ch, c)
	}
	close(c.send)
	h.mu.Unlock()

	metrics.ConnectionClosed()
	h.logger.Debug().Str("client_id", c.id).Msg("websocket disconnected")
}

func (h *Hub) removeSub(channel string, c *client) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// subscribe joins channel before reading the snapshot so events published
// meanwhile are held and sent right after it. A refused subscribe leaves again.
func (h *Hub) subscribe(c *client, channel string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*client]struct{})
	}
	h.channels[channel][c] = struct{}{}
	c.pending[channel] = []Frame{}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotWait)
	defer cancel()
	snapshot, err := h.source.ChannelSnapshot(ctx, c.userID, channel)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	held := c.pending[channel]
	delete(c.pending, channel)

	if err != nil {
		if _, joined := c.subs[channel]; !joined {
			h.removeSub(channel, c)
		}
		h.logger.Debug().Err(err).Str("channel", channel).Int64("user_id", c.userID).Msg("subscribe refused")
		c.enqueue(Frame{Type: TypeError, Channel: channel, Message: err.Error()})
		return
	}

	c.subs[channel] = struct{}{}
	c.enqueue(Frame{Type: TypeSnapshot, Channel: channel, Data: snapshot})
	for _, frame := range held {
		c.enqueue(frame)
	}
}

func (h *Hub) unsubscribe(c *client, channel string) {
	h.mu.Lock()
	delete(c.subs, channel)
	delete(c.pending, channel)
	h.removeSub(channel, c)
	h.mu.Unlock()

	h.sendTo(c, Frame{Type: TypeUnsubscribed, Channel: channel})
}

// Deliver pushes msg to every subscriber of its channel that the message reaches.
// Admins receive every message on channels they subscribed to.
func (h *Hub) Deliver(msg *models.RealtimeMessage) error {
	frame := Frame{Type: TypeEvent, Event: msg.Event, Channel: msg.Channel, Payload: msg.Payload}

	var slow []*client
	h.mu.Lock()
	for c := range h.channels[msg.Channel] {
		if !c.isAdmin && !msg.Reaches(c.userID) {
			continue
		}
		if held, ok := c.pending[msg.Channel]; ok {
			c.pending[msg.Channel] = append(held, frame)
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn().Str("client_id", c.id).Msg("dropping slow websocket client")
		metrics.IncDroppedClient()
		h.unregister(c)
	}
	return nil
}

func (h *Hub) sendTo(c *client, frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	c.enqueue(frame)
}

// Subscribers returns the number of clients subscribed to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
