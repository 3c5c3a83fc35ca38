// Package protocol defines the wire format for the rooksync event channel.
// The server pushes event frames; clients send small JSON control frames.
// This package is importable by external clients.
package protocol

import (
	"encoding/json"
	"errors"
)

// Client→server control actions.
const (
	ActionSubscribe = "subscribe"
	ActionPing      = "ping"
)

// SubscribeFrame asks the server to deliver the listed event topics.
// The full topic set is resent on every (re)connect so the server's
// subscription state survives connection churn.
type SubscribeFrame struct {
	Action string   `json:"action"` // always "subscribe"
	Events []string `json:"events"`
}

// PingFrame is a liveness signal for server-side idle timeouts.
// No pong observation is required by the client.
type PingFrame struct {
	Action string `json:"action"` // always "ping"
}

// ControlFrame is the server-side view of an inbound client frame.
type ControlFrame struct {
	Action string   `json:"action"`
	Events []string `json:"events,omitempty"`
}

// Event is one server→client frame: a dotted topic name plus a
// topic-specific payload. Payloads referring to a specific job always
// carry "job_id".
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ErrEmptyType is returned for frames without a topic name.
var ErrEmptyType = errors.New("protocol: event frame has no type")

// ParseEvent decodes a raw frame into an Event.
// Frames that are not JSON objects or lack a type are rejected;
// callers drop them without tearing down the connection.
func ParseEvent(raw []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if evt.Type == "" {
		return nil, ErrEmptyType
	}
	return &evt, nil
}

// NewSubscribe builds a subscribe control frame.
func NewSubscribe(topics []string) *SubscribeFrame {
	return &SubscribeFrame{Action: ActionSubscribe, Events: topics}
}

// NewPing builds a ping control frame.
func NewPing() *PingFrame {
	return &PingFrame{Action: ActionPing}
}
