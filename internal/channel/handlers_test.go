package channel

import (
	"testing"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

func TestHandlerRegistry_DispatchInOrder(t *testing.T) {
	r := NewHandlerRegistry()
	var calls []int
	r.On("job.created", func(*protocol.Event) { calls = append(calls, 1) })
	r.On("job.created", func(*protocol.Event) { calls = append(calls, 2) })
	r.On("job.failed", func(*protocol.Event) { calls = append(calls, 99) })

	r.Dispatch(&protocol.Event{Type: "job.created"})

	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("expected [1 2], got %v", calls)
	}
}

func TestHandlerRegistry_PanicDoesNotStopOthers(t *testing.T) {
	r := NewHandlerRegistry()
	var survived bool
	r.On("stats.updated", func(*protocol.Event) { panic("boom") })
	r.On("stats.updated", func(*protocol.Event) { survived = true })

	r.Dispatch(&protocol.Event{Type: "stats.updated"})

	if !survived {
		t.Error("handler after the panicking one was not invoked")
	}
}

func TestHandlerRegistry_Off(t *testing.T) {
	r := NewHandlerRegistry()
	var calls int
	id := r.On("job.completed", func(*protocol.Event) { calls++ })
	r.On("job.completed", func(*protocol.Event) { calls += 10 })

	r.Off("job.completed", id)
	r.Dispatch(&protocol.Event{Type: "job.completed"})

	if calls != 10 {
		t.Errorf("expected only the remaining handler to run, calls=%d", calls)
	}
}

func TestHandlerRegistry_UnknownTopicIsNoop(t *testing.T) {
	r := NewHandlerRegistry()
	r.Dispatch(&protocol.Event{Type: "nobody.listens"})
}
