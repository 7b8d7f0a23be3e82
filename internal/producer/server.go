package producer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/spectrum-waterfall/internal/spectrum"
	"github.com/roman-kulish/spectrum-waterfall/internal/viewport"
)

// DefaultAddr is the listen address waterfall clients expect.
const DefaultAddr = ":8766"

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFrameRate overrides the streaming cadence, mainly for tests.
func WithFrameRate(hz float64) func(*Server) {
	return func(s *Server) {
		s.frameRate = hz
	}
}

// Server streams simulated spectrum frames to each connected client and
// applies set_config messages to that client's viewport. It implements the
// producer side of the wire protocol; hardware capture is out of scope.
type Server struct {
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	frameRate float64
}

// NewServer creates a spectrum producer handler.
func NewServer(options ...func(*Server)) *Server {
	s := Server{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		frameRate: FrameRateHz,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// clientState is the per-connection viewport, shared between the stream
// loop and the control reader.
type clientState struct {
	mu  sync.Mutex
	cfg viewport.Config
}

func (c *clientState) get() viewport.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// frameMessage is the outbound spectrum envelope.
type frameMessage struct {
	Type string `json:"type"`
	spectrum.Frame
}

// helloMessage greets a client with the starting viewport.
type helloMessage struct {
	Type        string  `json:"type"`
	CenterHz    float64 `json:"center_hz"`
	BandwidthHz float64 `json:"bandwidth_hz"`
	Source      string  `json:"source"`
}

// controlMessage is the inbound shape for set_config and the legacy
// set_center_freq form. Pointer fields keep absent and zero apart.
type controlMessage struct {
	Type        string   `json:"type"`
	CenterHz    *float64 `json:"center_hz"`
	BandwidthHz *float64 `json:"bandwidth_hz"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	state := clientState{
		cfg: viewport.Config{
			CenterHz:    viewport.DefaultCenterHz,
			BandwidthHz: viewport.DefaultBandwidthHz,
		},
	}

	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	cfg := state.get()
	if err = writeJSON(helloMessage{
		Type:        "hello",
		CenterHz:    cfg.CenterHz,
		BandwidthHz: cfg.BandwidthHz,
		Source:      "simulated",
	}); err != nil {
		return
	}

	s.logger.Info("client connected", slog.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go s.readControl(conn, &state, done)

	source := NewSimSource()
	interval := time.Duration(float64(time.Second) / s.frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.logger.Info("client disconnected", slog.String("remote", r.RemoteAddr))
			return
		case now := <-ticker.C:
			cfg = state.get()
			msg := frameMessage{
				Type: spectrum.MessageSpectrum,
				Frame: spectrum.Frame{
					Dbfs:        source.Next(cfg.CenterHz, now),
					Timestamp:   float64(now.UnixNano()) / float64(time.Second),
					CenterHz:    cfg.CenterHz,
					BandwidthHz: cfg.BandwidthHz,
					FrameRate:   s.frameRate,
					FFTSize:     FFTSize,
					Source:      "simulated",
				},
			}
			if err = writeJSON(msg); err != nil {
				s.logger.Info("client disconnected", slog.String("remote", r.RemoteAddr))
				return
			}
		}
	}
}

// readControl applies viewport updates until the connection drops.
// Malformed messages are skipped; the bandwidth floor is enforced here as
// well, so a misbehaving client cannot drive the viewport below it.
func (s *Server) readControl(conn *websocket.Conn, state *clientState, done chan<- struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg controlMessage
		if err = json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != spectrum.MessageSetConfig && msg.Type != "set_center_freq" {
			continue
		}

		state.mu.Lock()
		if msg.CenterHz != nil {
			state.cfg.CenterHz = *msg.CenterHz
		}
		if msg.BandwidthHz != nil {
			state.cfg.BandwidthHz = *msg.BandwidthHz
		}
		state.cfg = state.cfg.Clamp()
		cfg := state.cfg
		state.mu.Unlock()

		s.logger.Debug("viewport updated",
			slog.Float64("centerHz", cfg.CenterHz),
			slog.Float64("bandwidthHz", cfg.BandwidthHz))
	}
}
