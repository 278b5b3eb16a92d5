package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-emote/pkg/emitter"
)

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	received []map[string]any
	dials    int
	auth     string
	got      chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{got: make(chan struct{}, 16)}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.dials++
		fs.auth = r.Header.Get("Authorization")
		fs.mu.Unlock()
		defer conn.Close()
		for {
			var m map[string]any
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			fs.mu.Lock()
			fs.received = append(fs.received, m)
			fs.mu.Unlock()
			fs.got <- struct{}{}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *fakeServer) wait(t *testing.T) {
	t.Helper()
	select {
	case <-fs.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRelay_Emit(t *testing.T) {
	fs := newFakeServer(t)
	r := New(fs.wsURL(), WithHeader(http.Header{"Authorization": {"Bearer t"}}))
	defer r.Close()

	p := emitter.NewPayload("user-1", "Smiling", 80, time.Now()).WithTargets([]string{"f1"})
	if err := r.Emit(context.Background(), emitter.EventEmotionChange, p); err != nil {
		t.Fatal(err)
	}
	if err := r.Emit(context.Background(), emitter.EventEmotionChange, p); err != nil {
		t.Fatal(err)
	}
	fs.wait(t)
	fs.wait(t)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dials != 1 {
		t.Errorf("dials = %d, want 1", fs.dials)
	}
	if fs.auth != "Bearer t" {
		t.Errorf("auth header = %q", fs.auth)
	}
	first := fs.received[0]
	if first["event"] != "emotion_change" {
		t.Errorf("event = %v", first["event"])
	}
	data := first["data"].(map[string]any)
	if data["emotionText"] != "Smiling" || data["profileId"] != "user-1" {
		t.Errorf("unexpected data %v", data)
	}
}

func TestRelay_DialFailure(t *testing.T) {
	r := New("ws://127.0.0.1:1/none")
	err := r.Emit(context.Background(), emitter.EventEmotionChange, emitter.Payload{})
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestRelay_Closed(t *testing.T) {
	fs := newFakeServer(t)
	r := New(fs.wsURL())
	r.Close()
	if err := r.Emit(context.Background(), "x", emitter.Payload{}); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestRelay_RedialsAfterServerClose(t *testing.T) {
	var dials atomic.Int32
	got := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		dials.Add(1)
		var m map[string]any
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		got <- m["event"].(string)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"), time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	defer srv.Close()

	r := New("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer r.Close()
	ctx := context.Background()

	if err := r.Emit(ctx, "first", emitter.Payload{}); err != nil {
		t.Fatal(err)
	}
	if ev := <-got; ev != "first" {
		t.Fatalf("event = %q", ev)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		dropped := r.conn == nil
		r.mu.Unlock()
		if dropped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("relay never noticed the server close")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := r.Emit(ctx, "second", emitter.Payload{}); err != nil {
		t.Fatalf("emit after close: %v", err)
	}
	select {
	case ev := <-got:
		if ev != "second" {
			t.Errorf("event = %q", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second event never arrived")
	}
	if n := dials.Load(); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
}
