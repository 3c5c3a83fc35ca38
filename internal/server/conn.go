package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// maxFrameSize caps inbound control frames (64KB). Clients only send
// subscribe and ping frames, so anything bigger is abuse.
const maxFrameSize = 64 * 1024

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// Conn is one WebSocket subscriber connection.
type Conn struct {
	id   string
	ws   *websocket.Conn
	hub  *Hub
	send chan []byte

	mu     sync.Mutex
	topics map[string]struct{}
}

func newConn(ws *websocket.Conn, hub *Hub) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, 256),
		topics: make(map[string]struct{}),
	}
}

// subscribedTo reports whether the client asked for this topic.
func (c *Conn) subscribedTo(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Conn) addTopics(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if t != "" {
			c.topics[t] = struct{}{}
		}
	}
}

// run starts the write pump and blocks in the read pump until the
// connection dies.
func (c *Conn) run() {
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("hub: read error", "conn", c.id, "error", err)
			}
			return
		}

		// Reset read deadline on activity
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		c.handleControl(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handleControl(data []byte) {
	var frame protocol.ControlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Debug("hub: dropping malformed control frame", "conn", c.id, "error", err)
		return
	}

	switch frame.Action {
	case protocol.ActionSubscribe:
		c.addTopics(frame.Events)
		c.enqueueJSON(map[string]any{"type": "subscribed", "events": frame.Events})
		slog.Debug("hub: subscribed", "conn", c.id, "topics", len(frame.Events))

	case protocol.ActionPing:
		c.enqueueJSON(map[string]any{"type": "pong"})

	default:
		slog.Debug("hub: unknown control action", "conn", c.id, "action", frame.Action)
	}
}

func (c *Conn) enqueueJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("hub: marshal failed", "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("hub: send buffer full, dropping frame", "conn", c.id)
	}
}
