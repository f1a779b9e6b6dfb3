package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  chan struct{}
	once    sync.Once
	stall   chan struct{} // when set, text writes block on it
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	if mt != websocket.TextMessage {
		return nil
	}
	if f.stall != nil {
		<-f.stall
	}
	f.mu.Lock()
	f.written = append(f.written, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	waitFor(t, h.IsRunning)
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Broadcast(t *testing.T) {
	h := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	go NewClient(h, a).Serve()
	go NewClient(h, b).Serve()
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.Publish(TopicSnapshot, map[string]string{"status": "listening"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, c := range []*fakeConn{a, b} {
		waitFor(t, func() bool { return len(c.messages()) == 1 })

		var env Envelope
		if err := json.Unmarshal(c.messages()[0], &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Topic != TopicSnapshot || string(env.Data) != `{"status":"listening"}` {
			t.Errorf("envelope = %+v", env)
		}
	}
}

func TestHub_PrimeIsFirst(t *testing.T) {
	h := startHub(t)

	conn := newFakeConn()
	c := NewClient(h, conn)
	if !c.Prime([]byte(`"hello"`)) {
		t.Fatal("Prime() = false")
	}
	go c.Serve()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast([]byte(`"next"`))
	waitFor(t, func() bool { return len(conn.messages()) == 2 })

	if got := string(conn.messages()[0]); got != `"hello"` {
		t.Errorf("first message = %s", got)
	}
}

func TestHub_Disconnect(t *testing.T) {
	h := startHub(t)

	conn := newFakeConn()
	go NewClient(h, conn).Serve()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := startHub(t)

	slow := newFakeConn()
	slow.stall = make(chan struct{})
	defer close(slow.stall)

	go NewClient(h, slow).Serve()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	for i := 0; i < 200; i++ {
		h.Broadcast([]byte(`{}`))
		time.Sleep(time.Millisecond)
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_Stop(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	waitFor(t, h.IsRunning)

	conn := newFakeConn()
	served := make(chan struct{})
	go func() {
		NewClient(h, conn).Serve()
		close(served)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-stopped

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after hub stopped")
	}

	if h.Broadcast([]byte(`{}`)) {
		t.Error("Broadcast() after stop = true")
	}
	if err := h.Publish(TopicDesktop, nil); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Publish() after stop = %v, want ErrNotRunning", err)
	}
}
