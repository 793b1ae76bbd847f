package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voxstream/internal/status"
	"voxstream/internal/transcribe"
)

func newTestHub(cfg Config) (*Hub, *status.Counters) {
	counters := &status.Counters{}
	h := New(cfg, "test-session", time.Now().UTC(), counters, zap.NewNop().Sugar())
	return h, counters
}

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestHub_SendsHelloOnAccept(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	server := httptest.NewServer(h.Handler())
	defer server.Close()

	conn := dialHub(t, server)
	defer conn.Close()

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if env.Type != MessageHello {
		t.Fatalf("expected hello, got %s", env.Type)
	}
	if env.Hello.SessionID != "test-session" {
		t.Fatalf("unexpected session id: %+v", env.Hello)
	}
}

func TestHub_BroadcastsEventToSubscriber(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	server := httptest.NewServer(h.Handler())
	defer server.Close()

	conn := dialHub(t, server)
	defer conn.Close()

	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("unexpected error reading hello: %v", err)
	}

	var joined Envelope
	if err := conn.ReadJSON(&joined); err != nil {
		t.Fatalf("unexpected error reading status: %v", err)
	}
	if joined.Type != MessageStatus || joined.Status == nil || joined.Status.Subscribers != 1 {
		t.Fatalf("expected status with one subscriber after hello, got %+v", joined)
	}

	time.Sleep(20 * time.Millisecond) // let onboarding finish before broadcasting
	h.Broadcast(transcribe.Event{ID: 1, Text: "hello world"})

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if env.Type != MessageEvent || env.Event == nil || env.Event.ID != 1 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestHub_SendsHistoryToLateSubscriber(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	h.Broadcast(transcribe.Event{ID: 1, Text: "first"})
	h.Broadcast(transcribe.Event{ID: 2, Text: "second"})

	server := httptest.NewServer(h.Handler())
	defer server.Close()

	conn := dialHub(t, server)
	defer conn.Close()

	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("unexpected error reading hello: %v", err)
	}

	var history Envelope
	if err := conn.ReadJSON(&history); err != nil {
		t.Fatalf("unexpected error reading history: %v", err)
	}
	if history.Type != MessageHistory || len(history.History) != 2 {
		t.Fatalf("unexpected history envelope: %+v", history)
	}
}

func TestHub_ShutdownSendsByeAndStopsAccepting(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	server := httptest.NewServer(h.Handler())
	defer server.Close()

	conn := dialHub(t, server)
	defer conn.Close()

	var hello Envelope
	_ = conn.ReadJSON(&hello)

	var joined Envelope
	if err := conn.ReadJSON(&joined); err != nil {
		t.Fatalf("unexpected error reading status: %v", err)
	}
	if joined.Type != MessageStatus || joined.Status == nil || joined.Status.Subscribers != 1 {
		t.Fatalf("expected status with one subscriber after hello, got %+v", joined)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var bye Envelope
	if err := conn.ReadJSON(&bye); err != nil {
		t.Fatalf("expected bye message, got error: %v", err)
	}
	if bye.Type != MessageBye {
		t.Fatalf("expected bye, got %s", bye.Type)
	}

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	if late, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		late.Close()
		t.Fatalf("expected dial after Shutdown to be refused")
	}
}
