package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/spectrum-waterfall/internal/spectrum"
)

// State is the connection state of the client. It is owned exclusively by
// the Client; all other components only observe it through the state
// handler or State().
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
	StateErrored      State = "errored"
)

const defaultDialTimeout = 10 * time.Second

// Stats are cumulative counters over the lifetime of the client.
type Stats struct {
	FramesReceived  uint64 // valid spectrum frames delivered to the handler
	MessagesDropped uint64 // malformed or unrecognized messages discarded
	Reconnects      uint64 // successful reopens after an interruption
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("endpoint", c.url))
	}
}

// WithDialer overrides the websocket dialer, mainly for tests.
func WithDialer(dialer *websocket.Dialer) func(*Client) {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithFrameHandler installs the callback invoked once per valid inbound
// spectrum frame, in arrival order, from a single goroutine.
func WithFrameHandler(fn func(*spectrum.Frame)) func(*Client) {
	return func(c *Client) {
		c.onFrame = fn
	}
}

// WithStateHandler installs the callback invoked on every connection state
// transition.
func WithStateHandler(fn func(State)) func(*Client) {
	return func(c *Client) {
		c.onState = fn
	}
}

// Client maintains a single streaming connection to the spectrum producer.
// It validates and forwards inbound frames, accepts outbound configuration
// sends only while Live, and recovers from disconnection on its own with
// bounded backoff. Nothing the producer does is fatal to the client.
type Client struct {
	url     string
	dialer  *websocket.Dialer
	logger  *slog.Logger
	onFrame func(*spectrum.Frame)
	onState func(State)

	// writeMu serializes writers; gorilla connections allow only one.
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	attempts int
	retry    *time.Timer
	closed   bool
	ctx      context.Context

	frames     atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
}

// New creates a client for the given endpoint, e.g. "ws://localhost:8766".
// The connection is not opened until Connect is called.
func New(url string, options ...func(*Client)) *Client {
	c := Client{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:  StateDisconnected,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Connect opens the connection. Dialing happens in the background; progress
// is reported through the state handler. The transition to Connecting is
// taken under the lock, so a second Connect racing the dial goroutine is a
// no-op rather than a second socket. Calling Connect on a closed client is a
// no-op.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.closed || (c.state != StateDisconnected && c.state != StateReconnecting) {
		c.mu.Unlock()
		return
	}
	c.ctx = ctx
	c.state = StateConnecting
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.dial()
}

// Send writes a configuration message to the producer. It is a silent no-op
// unless the connection is Live; the return value reports whether the
// message was written, so callers can keep unsent intent pending.
func (c *Client) Send(msg spectrum.ConfigMessage) bool {
	c.mu.Lock()
	conn := c.conn
	live := c.state == StateLive && conn != nil
	c.mu.Unlock()

	if !live {
		return false
	}

	// Retune and resync intents can arrive from independent goroutines.
	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("config send failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns cumulative message counters.
func (c *Client) Stats() Stats {
	return Stats{
		FramesReceived:  c.frames.Load(),
		MessagesDropped: c.dropped.Load(),
		Reconnects:      c.reconnects.Load(),
	}
}

// Close tears down the socket and cancels any pending reconnect timer. The
// client cannot be reused afterwards. Safe to call multiple times and from
// any prior state.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	c.notify(StateDisconnected)
	c.logger.Info("transport closed")
}

// dial runs in the background; the caller has already moved the state to
// Connecting.
func (c *Client) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("connect failed", slog.String("error", err.Error()))
		c.dropConnection(StateErrored)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	wasRetry := c.attempts > 0
	c.conn = conn
	c.attempts = 0 // successful open resets the backoff schedule
	c.state = StateLive
	c.mu.Unlock()

	if wasRetry {
		c.reconnects.Add(1)
	}

	c.logger.Info("connected")
	c.notify(StateLive)

	go c.readLoop(conn)
}

// readLoop forwards valid frames in arrival order. Any read error hands
// control to the reconnect machinery.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.conn != conn // superseded by a newer connection
			c.mu.Unlock()
			if !stale {
				c.logger.Warn("connection lost", slog.String("error", err.Error()))
				c.dropConnection(StateReconnecting)
			}
			return
		}

		frame, err := spectrum.ParseFrame(data)
		if err != nil {
			// Tolerance policy: unrecognized or malformed messages are
			// dropped without touching the connection state.
			c.dropped.Add(1)
			c.logger.Debug("message dropped", slog.String("error", err.Error()))
			continue
		}

		c.frames.Add(1)
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}

// dropConnection records a transport failure and schedules the next attempt.
// The intermediate state lets the UI distinguish a failed dial (Errored)
// from a lost stream (Reconnecting); both end up waiting on the same timer.
func (c *Client) dropConnection(via State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.attempts++
	delay := ReconnectDelay(c.attempts)
	attempt := c.attempts

	c.state = via
	c.retry = time.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	c.notify(via)
	c.logger.Info("reconnect scheduled",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
}

// redial fires from the reconnect timer. It must be a no-op if the client
// was closed after the timer was armed.
func (c *Client) redial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.state = StateConnecting
	c.mu.Unlock()

	c.notify(StateConnecting)
	c.dial()
}

func (c *Client) notify(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}
