package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/synthd/internal/infrastructure/config"
	"github.com/nerrad567/synthd/internal/infrastructure/logging"
	"github.com/nerrad567/synthd/internal/osc"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels.
const (
	// ChannelStatus carries every supervisor.Update. New clients are
	// subscribed to it.
	ChannelStatus = "engine.status"

	// ChannelReply carries decoded datagrams from the engine.
	ChannelReply = "engine.reply"
)

// knownChannels are the channels a client may subscribe to.
var knownChannels = map[string]bool{
	ChannelStatus: true,
	ChannelReply:  true,
}

const (
	// wsSendBufferSize is how many frames may wait for a slow client
	// before further events to it are dropped.
	wsSendBufferSize = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// inboundMessage is a client frame with its payload left undecoded.
type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSReply is the payload of a ChannelReply event.
type WSReply struct {
	From    string      `json:"from"`
	Message osc.Message `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connection. send is closed exactly once, by Unregister
// or by the hub shutting down, and never written after that.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	channels map[string]struct{}
}

// NewHub creates a hub. Zero config values take the package defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn, channels ...string) *WSClient {
	c := &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return c
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. It is safe to call more than once.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.shutdown()
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload as an event on channel to every subscriber.
// It never blocks; a client with a full buffer misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.subscribed(channel) && !c.enqueue(frame) {
			h.logger.Debug("websocket client too slow, event dropped", "channel", channel)
		}
	}
}

// broadcastUpdate is registered with Supervisor.OnUpdate.
func (s *Server) broadcastUpdate(u supervisor.Update) {
	s.hub.Broadcast(ChannelStatus, u)
}

// broadcastReply is registered with Supervisor.OnInbound. Datagrams that
// do not decode are not forwarded.
func (s *Server) broadcastReply(payload []byte, from netip.AddrPort) {
	if s.hub.ClientCount() == 0 {
		return
	}
	msg, err := osc.Decode(payload)
	if err != nil {
		return
	}
	s.hub.Broadcast(ChannelReply, WSReply{From: from.String(), Message: msg})
}

// handleWebSocket upgrades the connection and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	c := newWSClient(s.hub, conn, ChannelStatus)
	s.hub.Register(c)

	go c.writeLoop()
	go c.readLoop()
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// enqueue queues a frame and reports whether it was accepted.
func (c *WSClient) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes send so writeLoop sends a close frame and exits.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	}

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = extend("")
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop() {
	cfg := c.hub.cfg
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one client frame.
func (c *WSClient) dispatch(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.changeSubscriptions(msg)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (c *WSClient) changeSubscriptions(msg inboundMessage) {
	var sub WSSubscribePayload
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &sub) != nil {
		c.reply(msg.ID, WSTypeError, errorPayload("invalid "+msg.Type+" payload"))
		return
	}
	for _, ch := range sub.Channels {
		if !knownChannels[ch] {
			c.reply(msg.ID, WSTypeError, errorPayload(fmt.Sprintf("unknown channel %q", ch)))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if msg.Type == WSTypeSubscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string][]string{msg.Type + "d": sub.Channels})
}

func (c *WSClient) reply(id, msgType string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
