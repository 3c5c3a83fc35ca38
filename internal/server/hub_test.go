package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// dialHub runs the full server surface (mux + hub fan-out) and returns
// a connected client socket.
func dialHub(t *testing.T, api *API) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go api.hub.Run(ctx)
	// Let the fan-out loop attach to the bus before events flow.
	time.Sleep(20 * time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decoding frame %q: %v", raw, err)
	}
	return out
}

func TestHub_SubscribeAckAndPong(t *testing.T) {
	api, _ := newTestAPI(t)
	ws := dialHub(t, api)

	if err := ws.WriteJSON(protocol.NewSubscribe([]string{protocol.TopicJobCreated})); err != nil {
		t.Fatalf("sending subscribe: %v", err)
	}
	if ack := readFrame(t, ws); ack["type"] != "subscribed" {
		t.Errorf("expected a subscribed ack, got %v", ack)
	}

	if err := ws.WriteJSON(protocol.NewPing()); err != nil {
		t.Fatalf("sending ping: %v", err)
	}
	if pong := readFrame(t, ws); pong["type"] != "pong" {
		t.Errorf("expected pong, got %v", pong)
	}
}

func TestHub_DeliversSubscribedTopicsOnly(t *testing.T) {
	api, svc := newTestAPI(t)
	ws := dialHub(t, api)

	ws.WriteJSON(protocol.NewSubscribe([]string{protocol.TopicJobCreated}))
	readFrame(t, ws) // ack

	// stats.updated is not subscribed; job.created is.
	ctx := context.Background()
	id, err := svc.Create(ctx, "import", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	frame := readFrame(t, ws)
	if frame["type"] != protocol.TopicJobCreated {
		t.Fatalf("expected job.created, got %v", frame["type"])
	}
	data, _ := frame["data"].(map[string]any)
	if data["job_id"] != id {
		t.Errorf("expected job_id %s, got %v", id, data["job_id"])
	}
}

func TestHub_InternalTopicNeverBroadcast(t *testing.T) {
	api, svc := newTestAPI(t)
	ws := dialHub(t, api)

	ws.WriteJSON(protocol.NewSubscribe([]string{
		protocol.TopicJobExecutionRequested, protocol.TopicJobCreated,
	}))
	readFrame(t, ws) // ack

	// Request publishes job.created plus the internal execution topic;
	// only the former may reach the wire.
	if _, err := svc.Request(context.Background(), "sync", "", ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	if frame := readFrame(t, ws); frame["type"] != protocol.TopicJobCreated {
		t.Fatalf("expected job.created, got %v", frame["type"])
	}

	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := ws.ReadMessage(); err == nil {
		t.Errorf("internal topic leaked to the wire: %s", raw)
	}
}
