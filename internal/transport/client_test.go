package transport

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

	"github.com/roman-kulish/spectrum-waterfall/internal/spectrum"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// frameCollector gathers delivered frames for assertions.
type frameCollector struct {
	mu     sync.Mutex
	frames []*spectrum.Frame
	notify chan struct{}
}

func newFrameCollector() *frameCollector {
	return &frameCollector{notify: make(chan struct{}, 64)}
}

func (fc *frameCollector) handle(f *spectrum.Frame) {
	fc.mu.Lock()
	fc.frames = append(fc.frames, f)
	fc.mu.Unlock()

	select {
	case fc.notify <- struct{}{}:
	default:
	}
}

func (fc *frameCollector) wait(t *testing.T, n int, timeout time.Duration) []*spectrum.Frame {
	t.Helper()

	deadline := time.After(timeout)
	for {
		fc.mu.Lock()
		if len(fc.frames) >= n {
			frames := append([]*spectrum.Frame(nil), fc.frames...)
			fc.mu.Unlock()
			return frames
		}
		fc.mu.Unlock()

		select {
		case <-fc.notify:
		case <-deadline:
			fc.mu.Lock()
			got := len(fc.frames)
			fc.mu.Unlock()
			t.Fatalf("Timed out waiting for %d frames, got %d", n, got)
		}
	}
}

func waitState(t *testing.T, c *Client, want State, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, still %s", want, c.State())
}

func TestClient_DeliversFramesInOrder(t *testing.T) {
	messages := []string{
		`{"type":"spectrum","dbfs":[-100],"source":"simulated"}`,
		`{"type":"ping"}`, // tolerated, dropped, no state change
		`{"type":"spectrum","dbfs":[-90]}`,
		`{"dbfs":"not even close"}`,
		`{"type":"spectrum","dbfs":[-80]}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, msg := range messages {
			if err = conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the connection open so the client stays Live.
		conn.ReadMessage()
	}))
	defer srv.Close()

	fc := newFrameCollector()
	c := New(wsURL(srv), WithFrameHandler(fc.handle))
	defer c.Close()

	c.Connect(context.Background())

	frames := fc.wait(t, 3, 5*time.Second)
	want := []float64{-100, -90, -80}
	for i, level := range want {
		if frames[i].Dbfs[0] != level {
			t.Errorf("Frame %d = %f, want %f", i, frames[i].Dbfs[0], level)
		}
	}

	// Junk between valid frames never disturbs the connection state.
	if got := c.State(); got != StateLive {
		t.Errorf("State after junk messages = %s, want %s", got, StateLive)
	}
	if stats := c.Stats(); stats.MessagesDropped != 2 {
		t.Errorf("MessagesDropped = %d, want 2", stats.MessagesDropped)
	}
}

func TestClient_SendOnlyWhileLive(t *testing.T) {
	received := make(chan spectrum.ConfigMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg spectrum.ConfigMessage
		if err = conn.ReadJSON(&msg); err != nil {
			return
		}
		received <- msg
	}))
	defer srv.Close()

	c := New(wsURL(srv))
	defer c.Close()

	// Not connected: a silent no-op, not an error.
	if c.Send(spectrum.NewConfigMessage(1e8, 2e6)) {
		t.Error("Send succeeded while disconnected")
	}

	c.Connect(context.Background())
	waitState(t, c, StateLive, 5*time.Second)

	if !c.Send(spectrum.NewConfigMessage(1e8, 2e6)) {
		t.Fatal("Send failed while live")
	}

	select {
	case msg := <-received:
		if msg.Type != spectrum.MessageSetConfig || msg.CenterHz != 1e8 {
			t.Errorf("Producer received %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Producer never received the config message")
	}
}

func TestClient_ConcurrentSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err = conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(wsURL(srv))
	defer c.Close()

	c.Connect(context.Background())
	waitState(t, c, StateLive, 5*time.Second)

	// An operator retune can race the resync fired from the dial goroutine's
	// state callback; the connection must serialize the writers.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Send(spectrum.NewConfigMessage(100e6+float64(g), 2e6))
			}
		}(g)
	}
	wg.Wait()

	if got := c.State(); got != StateLive {
		t.Errorf("State after concurrent sends = %s, want %s", got, StateLive)
	}
}

func TestClient_ConnectIsSingleFlight(t *testing.T) {
	var upgrades atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgrades.Add(1)
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := New(wsURL(srv))
	defer c.Close()

	ctx := context.Background()
	c.Connect(ctx)

	// The transition out of Disconnected happens before Connect returns, so
	// repeated calls while the dial is in flight cannot open a second socket.
	if got := c.State(); got != StateConnecting && got != StateLive {
		t.Fatalf("State after Connect = %s, want connecting or live", got)
	}
	c.Connect(ctx)
	c.Connect(ctx)

	waitState(t, c, StateLive, 5*time.Second)
	time.Sleep(100 * time.Millisecond)

	if got := upgrades.Load(); got != 1 {
		t.Errorf("Server accepted %d connections, want 1", got)
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect test waits out the backoff delay")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// One frame, then an abnormal close.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"spectrum","dbfs":[-100]}`))
		conn.Close()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var states []State

	fc := newFrameCollector()
	c := New(wsURL(srv),
		WithFrameHandler(fc.handle),
		WithStateHandler(func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}))
	defer c.Close()

	c.Connect(context.Background())

	// The first drop schedules a retry after 900ms; a second frame proves
	// the connection was reopened without operator intervention.
	fc.wait(t, 2, 10*time.Second)

	if stats := c.Stats(); stats.Reconnects < 1 {
		t.Errorf("Reconnects = %d, want at least 1", stats.Reconnects)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawReconnecting bool
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Errorf("State sequence %v never entered %s", states, StateReconnecting)
	}
}

func TestClient_CloseCancelsPendingReconnect(t *testing.T) {
	// Nothing listens here; the dial fails and a reconnect is scheduled.
	c := New("ws://127.0.0.1:1")

	c.Connect(context.Background())
	waitState(t, c, StateErrored, 5*time.Second)

	c.Close()
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("State after Close = %s, want %s", got, StateDisconnected)
	}

	// The armed timer must be a no-op: no dial attempt may flip the state
	// after teardown.
	time.Sleep(1200 * time.Millisecond)
	if got := c.State(); got != StateDisconnected {
		t.Errorf("Reconnect timer fired after Close, state = %s", got)
	}

	// Close is idempotent under any prior state.
	c.Close()
}

func TestClient_CloseWhileLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() // block until the client goes away
	}))
	defer srv.Close()

	c := New(wsURL(srv))
	c.Connect(context.Background())
	waitState(t, c, StateLive, 5*time.Second)

	c.Close()
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State after Close = %s, want %s", got, StateDisconnected)
	}

	// The dropped socket must not trigger the reconnect machinery.
	time.Sleep(100 * time.Millisecond)
	if got := c.State(); got != StateDisconnected {
		t.Errorf("Closed client changed state to %s", got)
	}
}
