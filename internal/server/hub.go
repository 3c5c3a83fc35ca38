package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// Hub upgrades WebSocket connections and broadcasts bus events to the
// connections subscribed to each topic.
type Hub struct {
	bus      *Bus
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewHub(bus *Bus) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local single-user tool; the HTTP surface is not origin-gated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

// ServeWS handles the /ws endpoint.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("hub: upgrade failed", "error", err)
		return
	}

	conn := newConn(ws, h)
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()

	slog.Info("hub: client connected", "conn", conn.id)
	conn.run()
}

// Run consumes every bus event and fans it out to subscribed
// connections until ctx is cancelled. Internal topics never leave the
// process.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.bus.Subscribe("")
	defer h.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-sub.C:
			if evt == nil || evt.Type == protocol.TopicJobExecutionRequested {
				continue
			}
			h.broadcast(evt)
		}
	}
}

func (h *Hub) broadcast(evt *protocol.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("hub: marshal event failed", "topic", evt.Type, "error", err)
		return
	}

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if c.subscribedTo(evt.Type) {
			c.enqueue(data)
		}
	}
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	slog.Info("hub: client disconnected", "conn", c.id)
}
