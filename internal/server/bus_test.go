package server

import (
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

func TestBus_TopicAndAllSubscribers(t *testing.T) {
	b := NewBus()
	topicSub := b.Subscribe(protocol.TopicJobCreated)
	allSub := b.Subscribe("")
	otherSub := b.Subscribe(protocol.TopicJobFailed)

	evt := &protocol.Event{Type: protocol.TopicJobCreated}
	b.Publish(evt)

	select {
	case got := <-topicSub.C:
		if got != evt {
			t.Error("topic subscriber got a different event")
		}
	default:
		t.Error("topic subscriber missed the event")
	}
	select {
	case <-allSub.C:
	default:
		t.Error("all-topics subscriber missed the event")
	}
	select {
	case <-otherSub.C:
		t.Error("unrelated subscriber received the event")
	default:
	}
}

func TestBus_PublishNeverBlocksOnFullQueue(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(protocol.TopicStatsUpdated)

	evt := &protocol.Event{Type: protocol.TopicStatsUpdated}
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(evt) // must not deadlock once the queue fills
	}

	drained := 0
	for {
		select {
		case <-sub.C:
			drained++
			continue
		default:
		}
		break
	}
	if drained != subscriberBuffer {
		t.Errorf("expected a full queue of %d, got %d", subscriberBuffer, drained)
	}
}

func TestBus_UnsubscribeClosesQueue(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(protocol.TopicJobCompleted)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("expected a closed queue after unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed queue.
	b.Publish(&protocol.Event{Type: protocol.TopicJobCompleted})
}

func TestBus_PublishDuringUnsubscribeChurn(t *testing.T) {
	b := NewBus()
	evt := &protocol.Event{Type: protocol.TopicJobCreated}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					b.Publish(evt)
				}
			}
		}()
	}

	// Subscribers come and go while publishers hammer the bus. A send
	// racing a close panics the process, which fails the test.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		topicSub := b.Subscribe(protocol.TopicJobCreated)
		allSub := b.Subscribe("")
		b.Unsubscribe(topicSub)
		b.Unsubscribe(allSub)
	}

	close(done)
	wg.Wait()
}
