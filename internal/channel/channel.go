// Package channel maintains the persistent event connection to the
// rooksync server: connect, reconnect with capped exponential backoff,
// heartbeat, subscription replay, and frame dispatch.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectBase     = 3 * time.Second
	defaultReconnectMax      = 30 * time.Second
	defaultMaxAttempts       = 10
)

// Config controls the channel's endpoint and timing.
type Config struct {
	URL string // ws:// or wss:// endpoint

	HeartbeatInterval    time.Duration // default 30s
	ReconnectBase        time.Duration // default 3s
	ReconnectMax         time.Duration // default 30s
	MaxReconnectAttempts int           // default 10

	Dialer *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxAttempts
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// Channel owns at most one live WebSocket connection to the server.
// All shared state (connection, attempt counter, timers) is written
// under one mutex; every frame write goes through the same mutex so
// the single-writer rule of the underlying connection holds.
type Channel struct {
	cfg      Config
	handlers *HandlerRegistry
	subs     *SubscriptionSet

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	attempts       int
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
}

// New creates a disconnected channel with its own handler registry and
// subscription set.
func New(cfg Config) *Channel {
	return &Channel{
		cfg:      cfg.withDefaults(),
		handlers: NewHandlerRegistry(),
		subs:     NewSubscriptionSet(),
	}
}

// Handlers returns the registry frames are dispatched through.
func (c *Channel) Handlers() *HandlerRegistry { return c.handlers }

// On registers a handler for topic. Shorthand for Handlers().On.
func (c *Channel) On(topic string, fn Handler) uint64 {
	return c.handlers.On(topic, fn)
}

// Off removes a handler registration.
func (c *Channel) Off(topic string, id uint64) {
	c.handlers.Off(topic, id)
}

// State reports the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe unions topics into the subscription set. While connected a
// subscribe frame is sent even for already-held topics, so the server's
// own subscription state stays consistent; while disconnected the union
// is replayed on the next successful connect.
func (c *Channel) Subscribe(topics ...string) {
	c.subs.Add(topics...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(protocol.NewSubscribe(topics)); err != nil {
		slog.Warn("channel: subscribe send failed", "error", err)
	}
}

// Connect opens the connection. A channel that is already connected or
// connecting is left alone. On success the reconnect counter resets,
// the full subscription set is resent as a single frame, and the
// heartbeat starts. On failure a reconnect is scheduled with backoff.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		slog.Warn("channel: dial failed", "url", c.cfg.URL, "error", err)
		c.mu.Lock()
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Torn down while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	stop := make(chan struct{})
	c.heartbeatStop = stop

	topics := c.subs.Topics()
	if len(topics) > 0 {
		if err := conn.WriteJSON(protocol.NewSubscribe(topics)); err != nil {
			slog.Warn("channel: subscription replay failed", "error", err)
		}
	}
	c.mu.Unlock()

	slog.Info("channel: connected", "url", c.cfg.URL, "topics", len(topics))

	go c.heartbeatLoop(conn, stop)
	go c.readLoop(conn)
	return nil
}

// Disconnect tears the connection down for good: the attempt counter is
// forced to the maximum so no stale timer can resurrect the connection,
// the heartbeat and any pending reconnect are cancelled, and the socket
// is closed. A later manual Connect starts fresh.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.attempts = c.cfg.MaxReconnectAttempts
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		slog.Info("channel: disconnected")
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionLost(conn, err)
			return
		}

		evt, perr := protocol.ParseEvent(raw)
		if perr != nil {
			slog.Debug("channel: dropping malformed frame", "error", perr)
			continue
		}
		c.handlers.Dispatch(evt)
	}
}

func (c *Channel) handleConnectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Already torn down or superseded by a newer connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.stopHeartbeatLocked()
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	conn.Close()
	slog.Warn("channel: connection lost", "error", err)
}

// scheduleReconnectLocked arms the reconnect timer with
// min(ReconnectMax, ReconnectBase * 2^attempts) and bumps the counter.
// At the attempt cap the channel goes passive until a manual Connect.
func (c *Channel) scheduleReconnectLocked() {
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		slog.Warn("channel: reconnect attempts exhausted", "attempts", c.attempts)
		return
	}
	delay := reconnectDelay(c.cfg.ReconnectBase, c.cfg.ReconnectMax, c.attempts)
	c.attempts++
	slog.Info("channel: reconnecting", "attempt", c.attempts, "delay", delay)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.Connect(context.Background())
	})
}

func (c *Channel) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sendPing(conn)
		}
	}
}

func (c *Channel) sendPing(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	if err := conn.WriteJSON(protocol.NewPing()); err != nil {
		// The read loop will observe the dead connection and recover.
		slog.Debug("channel: ping failed", "error", err)
	}
}

func (c *Channel) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}
