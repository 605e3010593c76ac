package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/coursegen/internal/platform/apierr"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// streamServer upgrades /api/v1/ai/ws/generation/{id} and hands the conn to fn.
func streamServer(t *testing.T, fn func(id string, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ai/ws/generation/{id}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		fn(r.PathValue("id"), conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, id string) Channel {
	t.Helper()
	d, err := NewWSDialer(srv.URL+"/api/v1", nil)
	if err != nil {
		t.Fatalf("NewWSDialer: %v", err)
	}
	ch, err := d.Dial(context.Background(), id)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func recvEvent(t *testing.T, ch Channel, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch.Events():
		return ev, ok
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for progress event")
	}
	return Event{}, false
}

func TestStreamUntilCompleted(t *testing.T) {
	gotID := make(chan string, 1)
	srv := streamServer(t, func(id string, conn *websocket.Conn) {
		gotID <- id
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"progress":50,"message":"halfway","status":"running"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"progress":100,"message":"done","status":"completed"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"progress":100,"message":"extra","status":"running"}`))
		_, _, _ = conn.ReadMessage()
	})

	ch := dial(t, srv, "abc123")
	if ch.State() != StateOpen {
		t.Fatalf("state=%s", ch.State())
	}
	if id := <-gotID; id != "abc123" {
		t.Fatalf("id=%q", id)
	}

	first, ok := recvEvent(t, ch, 2*time.Second)
	if !ok || first.Progress != 50 || first.Message != "halfway" || first.Status != StatusRunning {
		t.Fatalf("first=%+v ok=%v", first, ok)
	}
	second, ok := recvEvent(t, ch, 2*time.Second)
	if !ok || second.Progress != 100 || second.Status != StatusCompleted {
		t.Fatalf("second=%+v ok=%v", second, ok)
	}
	if _, ok := recvEvent(t, ch, 2*time.Second); ok {
		t.Fatalf("sequence should end after terminal event")
	}
	if ch.State() != StateCompleted {
		t.Fatalf("state=%s", ch.State())
	}
	if ch.Err() != nil {
		t.Fatalf("err=%v", ch.Err())
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ch.State() != StateClosed {
		t.Fatalf("state after close=%s", ch.State())
	}
}

func TestFailedEventEndsStream(t *testing.T) {
	srv := streamServer(t, func(id string, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"progress":80,"message":"content policy violation","status":"failed"}`))
		_, _, _ = conn.ReadMessage()
	})
	ch := dial(t, srv, "job-2")
	ev, ok := recvEvent(t, ch, 2*time.Second)
	if !ok || ev.Status != StatusFailed || ev.Message != "content policy violation" {
		t.Fatalf("ev=%+v ok=%v", ev, ok)
	}
	if ch.State() != StateFailed {
		t.Fatalf("state=%s", ch.State())
	}
}

func TestNoEventsAfterClose(t *testing.T) {
	closed := make(chan struct{})
	srv := streamServer(t, func(id string, conn *websocket.Conn) {
		<-closed
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"progress":10,"message":"late","status":"running"}`))
		_, _, _ = conn.ReadMessage()
	})
	ch := dial(t, srv, "job-3")
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = ch.Close()
	close(closed)

	if ev, ok := recvEvent(t, ch, 2*time.Second); ok {
		t.Fatalf("late event delivered: %+v", ev)
	}
	if ch.State() != StateClosed {
		t.Fatalf("state=%s", ch.State())
	}
	if ch.Err() != nil {
		t.Fatalf("owner close should not set err: %v", ch.Err())
	}
}

func TestServerDropSurfacesError(t *testing.T) {
	srv := streamServer(t, func(id string, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"progress":5,"message":"queued","status":"running"}`))
	})
	ch := dial(t, srv, "job-4")
	if ev, ok := recvEvent(t, ch, 2*time.Second); !ok || ev.Progress != 5 {
		t.Fatalf("ev=%+v ok=%v", ev, ok)
	}
	if _, ok := recvEvent(t, ch, 2*time.Second); ok {
		t.Fatalf("expected end of sequence")
	}
	if !errors.Is(ch.Err(), apierr.ErrNetwork) {
		t.Fatalf("err=%v", ch.Err())
	}
}

func TestDialFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	d, err := NewWSDialer(srv.URL+"/api/v1", nil)
	if err != nil {
		t.Fatalf("NewWSDialer: %v", err)
	}
	if _, err := d.Dial(context.Background(), "nope"); !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("err=%v", err)
	}
	if _, err := d.Dial(context.Background(), " "); err == nil {
		t.Fatalf("expected batch id error")
	}
}

func TestDialerURL(t *testing.T) {
	d, err := NewWSDialer("http://localhost:8000/api/v1/", nil)
	if err != nil {
		t.Fatalf("NewWSDialer: %v", err)
	}
	if got := d.URL("abc123"); got != "ws://localhost:8000/api/v1/ai/ws/generation/abc123" {
		t.Fatalf("url=%q", got)
	}
}
