package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/events"
	"github.com/atlas-desktop/portfolio-replay/internal/telemetry"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines WebSocket message types.
type MessageType string

const (
	// Server -> Client messages
	MsgTypeStateUpdate MessageType = "state_update"
	MsgTypeEvent       MessageType = "event"
	MsgTypeResponse    MessageType = "response"
	MsgTypeError       MessageType = "error"
	MsgTypeHeartbeat   MessageType = "heartbeat"

	// Client -> Server messages
	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
	MsgTypeCommand     MessageType = "command"
)

// Channels clients can subscribe to
const (
	ChannelState  = "state"
	ChannelEvents = "events"
)

// WSMessage is a WebSocket message.
type WSMessage struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Command   string          `json:"command,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// CommandHandler executes a named session command
type CommandHandler interface {
	Dispatch(ctx context.Context, command string, args CommandArgs) (interface{}, error)
}

const (
	sendBuffer     = 256
	readLimit      = 64 << 10
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	writeWait      = 10 * time.Second
	commandTimeout = 30 * time.Second
)

// Client is one WebSocket connection and the channels it listens on
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool // guarded by hub.mu
	closed   bool            // guarded by hub.mu
}

// NewClient wraps an upgraded connection
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool),
	}
}

// Hub tracks connected clients and fans messages out to them. Sends never
// block: a client whose buffer is full is disconnected.
type Hub struct {
	logger   *zap.Logger
	commands CommandHandler

	mu      sync.RWMutex
	clients map[*Client]struct{}
	stopped bool

	heartbeat time.Duration
	done      chan struct{}
	stopOnce  sync.Once
}

// NewHub creates a hub. commands may be nil, in which case command messages
// are answered with an error.
func NewHub(logger *zap.Logger, commands CommandHandler) *Hub {
	return &Hub{
		logger:    logger,
		commands:  commands,
		clients:   make(map[*Client]struct{}),
		heartbeat: 30 * time.Second,
		done:      make(chan struct{}),
	}
}

// Run sends heartbeats until Stop, then disconnects every client
func (h *Hub) Run() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case <-ticker.C:
			if msg, err := encode(MsgTypeHeartbeat, "", nil); err == nil {
				h.fanOut(msg, func(*Client) bool { return true })
			}
		}
	}
}

// Stop ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client. It fails once the hub is stopped.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	telemetry.WebSocketClients.Set(float64(len(h.clients)))
	h.logger.Debug("Client registered", zap.String("id", c.id))
	return true
}

// Unregister removes a client and closes its send queue
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// drop is Unregister for callers holding h.mu
func (h *Hub) drop(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c)
	close(c.send)
	telemetry.WebSocketClients.Set(float64(len(h.clients)))
	h.logger.Debug("Client unregistered", zap.String("id", c.id))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for c := range h.clients {
		h.drop(c)
	}
}

// Subscribe adds a channel to a client's set
func (h *Hub) Subscribe(c *Client, channel string) {
	h.mu.Lock()
	c.channels[channel] = true
	h.mu.Unlock()

	h.logger.Debug("Client subscribed to channel",
		zap.String("client", c.id),
		zap.String("channel", channel))
}

// Unsubscribe removes a channel from a client's set
func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	delete(c.channels, channel)
	h.mu.Unlock()
}

// fanOut queues msg for every client match accepts
func (h *Hub) fanOut(msg []byte, match func(*Client) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- msg:
			sent++
		default:
			h.logger.Warn("Client too slow, disconnecting", zap.String("client", c.id))
			h.drop(c)
		}
	}
	return sent
}

func encode(msgType MessageType, channel string, data interface{}) ([]byte, error) {
	msg := WSMessage{
		Type:      msgType,
		Channel:   channel,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// PublishToChannel sends data to the clients subscribed to channel
func (h *Hub) PublishToChannel(channel string, msgType MessageType, data interface{}) {
	msg, err := encode(msgType, channel, data)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.String("channel", channel), zap.Error(err))
		return
	}
	h.fanOut(msg, func(c *Client) bool { return c.channels[channel] })
}

// Broadcast sends data to every client
func (h *Hub) Broadcast(msgType MessageType, data interface{}) {
	msg, err := encode(msgType, "", data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", zap.Error(err))
		return
	}
	h.fanOut(msg, func(*Client) bool { return true })
}

// AttachBus forwards every session event to the events channel and follows
// it with a fresh snapshot on the state channel. Snapshots are only taken
// while someone listens.
func (h *Hub) AttachBus(bus *events.EventBus, snapshot func() interface{}) *events.Subscription {
	return bus.SubscribeAll(func(e events.Event) error {
		h.PublishToChannel(ChannelEvents, MsgTypeEvent, e)
		if h.listening(ChannelState) {
			h.PublishToChannel(ChannelState, MsgTypeStateUpdate, snapshot())
		}
		return nil
	})
}

func (h *Hub) listening(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.channels[channel] {
			return true
		}
	}
	return false
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReadPump pumps messages from the WebSocket to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Warn("Invalid WebSocket message", zap.Error(err))
			c.reply(WSMessage{Type: MsgTypeError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case MsgTypeSubscribe:
			c.hub.Subscribe(c, msg.Channel)
			c.reply(WSMessage{ID: msg.ID, Type: MsgTypeResponse, Channel: msg.Channel})
		case MsgTypeUnsubscribe:
			c.hub.Unsubscribe(c, msg.Channel)
			c.reply(WSMessage{ID: msg.ID, Type: MsgTypeResponse, Channel: msg.Channel})
		case MsgTypeCommand:
			c.handleCommand(msg)
		default:
			c.reply(WSMessage{ID: msg.ID, Type: MsgTypeError, Error: "unknown message type"})
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket, one frame per
// message.
func (c *Client) WritePump() {
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

// reply queues a message for this client only
func (c *Client) reply(msg WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("Client buffer full, dropping reply", zap.String("client", c.id))
	}
}

// handleCommand runs a session command and answers with its result.
func (c *Client) handleCommand(msg WSMessage) {
	resp := WSMessage{ID: msg.ID, Type: MsgTypeResponse, Command: msg.Command}
	if c.hub.commands == nil {
		resp.Type = MsgTypeError
		resp.Error = "commands are not enabled"
		c.reply(resp)
		return
	}

	var args CommandArgs
	if len(msg.Args) > 0 {
		if err := json.Unmarshal(msg.Args, &args); err != nil {
			resp.Type = MsgTypeError
			resp.Error = "invalid args: " + err.Error()
			c.reply(resp)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := c.hub.commands.Dispatch(ctx, msg.Command, args)
	if err != nil {
		resp.Type = MsgTypeError
		resp.Error = err.Error()
		c.reply(resp)
		return
	}
	if result != nil {
		resp.Data, _ = json.Marshal(result)
	}
	c.reply(resp)

	c.hub.logger.Debug("Command handled", zap.String("client", c.id), zap.String("command", msg.Command))
}
