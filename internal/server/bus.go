// Package server is the event-producing side of rooksync: the event
// bus, the WebSocket hub, the job service over the store, and the
// executor that runs registered job functions.
package server

import (
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

const subscriberBuffer = 64

// Subscription is one reader's queue on the bus.
type Subscription struct {
	C     <-chan *protocol.Event
	ch    chan *protocol.Event
	topic string // "" = all topics
}

// Bus fans events out to per-subscriber queues. Publish never blocks:
// a subscriber that stops draining its queue misses events rather than
// stalling the producer.
type Bus struct {
	mu      sync.RWMutex
	byTopic map[string][]*Subscription
	all     []*Subscription
}

func NewBus() *Bus {
	return &Bus{byTopic: make(map[string][]*Subscription)}
}

// Subscribe returns a queue for events of the given topic, or for all
// events when topic is empty.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{ch: make(chan *protocol.Event, subscriberBuffer), topic: topic}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == "" {
		b.all = append(b.all, sub)
	} else {
		b.byTopic[topic] = append(b.byTopic[topic], sub)
	}
	return sub
}

// Unsubscribe removes the subscription and closes its queue.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.topic == "" {
		b.all = removeSub(b.all, sub)
	} else {
		b.byTopic[sub.topic] = removeSub(b.byTopic[sub.topic], sub)
	}
	close(sub.ch)
}

// Publish delivers the event to topic subscribers and all-event
// subscribers, dropping it for any full queue. The read lock is held
// across the sends: Unsubscribe closes queues under the write lock, so
// a send can never hit a closed queue.
func (b *Bus) Publish(evt *protocol.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, subs := range [][]*Subscription{b.byTopic[evt.Type], b.all} {
		for _, sub := range subs {
			select {
			case sub.ch <- evt:
			default:
				slog.Debug("bus: subscriber queue full, dropping event", "topic", evt.Type)
			}
		}
	}
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
