package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type frame struct {
	kind int
	data string
}

// serveFrames writes the frames then closes the stream normally.
func serveFrames(t *testing.T, frames []frame) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(f.kind, []byte(f.data)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		// Wait for the client's close reply.
		_, _, _ = conn.ReadMessage()
	}))
}

func collect() (Handler, func() []Frame) {
	var mu sync.Mutex
	var got []Frame
	return func(f Frame) {
			mu.Lock()
			got = append(got, f)
			mu.Unlock()
		}, func() []Frame {
			mu.Lock()
			defer mu.Unlock()
			return append([]Frame(nil), got...)
		}
}

func TestClient_DeliversFramesAndEndsCleanly(t *testing.T) {
	srv := serveFrames(t, []frame{
		{websocket.TextMessage, `{"type":"media_packet"}`},
		{websocket.BinaryMessage, "\x81\xa4type"},
	})
	defer srv.Close()

	var connected string
	c, err := New(Config{
		URL:       wsURL(srv),
		OnConnect: func(id string) { connected = id },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handler, frames := collect()
	if err := c.Run(context.Background(), handler); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames()
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[0].Binary || !got[1].Binary {
		t.Errorf("binary flags = %v,%v, want false,true", got[0].Binary, got[1].Binary)
	}
	if got[0].ConnectionID == "" || got[0].ConnectionID != connected {
		t.Errorf("connection id = %q, OnConnect saw %q", got[0].ConnectionID, connected)
	}
	if stats := c.Stats(); stats.Frames != 2 || stats.Connects != 1 || stats.Reconnects != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClient_SendsHeaders(t *testing.T) {
	var token atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token.Store(r.Header.Get("Authorization"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, err := New(Config{
		URL:    wsURL(srv),
		Header: http.Header{"Authorization": []string{"Bearer abc"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Run(context.Background(), func(Frame) {}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, _ := token.Load().(string); got != "Bearer abc" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("frame"))
		if n == 1 {
			// Abrupt drop without a close frame.
			_ = conn.Close()
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	}))
	defer srv.Close()

	c, err := New(Config{URL: wsURL(srv), MaxAttempts: 3, Backoff: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	handler, frames := collect()
	if err := c.Run(context.Background(), handler); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := frames()
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[0].ConnectionID == got[1].ConnectionID {
		t.Error("expected a new connection id after reconnect")
	}
	if stats := c.Stats(); stats.Connects != 2 || stats.Reconnects != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{URL: wsURL(srv), MaxAttempts: 2, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Run(context.Background(), func(Frame) {})
	if !IsTransportError(err) {
		t.Fatalf("Run error = %v, want TransportError", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("dial attempts = %d, want 3", got)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(Config{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, func(Frame) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "ws://x", MaxAttempts: -1}); err == nil {
		t.Error("expected error for negative attempts")
	}
}
