package channel

import (
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// Handler processes one event frame. Handlers for the same topic run in
// registration order.
type Handler func(evt *protocol.Event)

type handlerEntry struct {
	id uint64
	fn Handler
}

// HandlerRegistry maps a topic to its ordered list of observers.
// Dispatch isolates each observer: one panicking handler must not stop
// the remaining handlers from seeing the event.
type HandlerRegistry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handlerEntry
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string][]handlerEntry)}
}

// On appends a handler for topic. The returned id can be passed to Off.
func (r *HandlerRegistry) On(topic string, fn Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.handlers[topic] = append(r.handlers[topic], handlerEntry{id: r.nextID, fn: fn})
	return r.nextID
}

// Off removes the handler registered under id for topic.
func (r *HandlerRegistry) Off(topic string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[topic]
	for i, e := range entries {
		if e.id == id {
			r.handlers[topic] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// OffAll clears every handler for topic.
func (r *HandlerRegistry) OffAll(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, topic)
}

// Dispatch invokes every handler registered for evt.Type in order.
// A topic with zero handlers is a silent no-op.
func (r *HandlerRegistry) Dispatch(evt *protocol.Event) {
	r.mu.RLock()
	entries := r.handlers[evt.Type]
	snapshot := make([]handlerEntry, len(entries))
	copy(snapshot, entries)
	r.mu.RUnlock()

	for _, e := range snapshot {
		invoke(evt, e)
	}
}

func invoke(evt *protocol.Event, e handlerEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event handler panicked", "topic", evt.Type, "handler", e.id, "panic", rec)
		}
	}()
	e.fn(evt)
}
