package viewport

import (
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/spectrum-waterfall/internal/spectrum"
)

// Sender delivers a set_config message to the producer. Send reports whether
// the message was actually written; a transport that is not Live drops the
// message silently and returns false.
type Sender interface {
	Send(spectrum.ConfigMessage) bool
}

// WithLogger sets the logger for the synchronizer.
func WithLogger(logger *slog.Logger) func(*Synchronizer) {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithObserver registers a callback invoked whenever the desired viewport
// changes. Derived values (frequency edges, visible span) are recomputed by
// observers on the specific mutation that affects them; there is no ambient
// reactivity.
func WithObserver(fn func(Config)) func(*Synchronizer) {
	return func(s *Synchronizer) {
		s.observers = append(s.observers, fn)
	}
}

// Synchronizer keeps the producer's viewport in sync with operator intent
// without flooding the transport. It remembers the last pair it managed to
// send and emits a new set_config only when the desired pair differs, or
// when the connection has just come back Live and the producer's state is
// presumed lost.
type Synchronizer struct {
	sender    Sender
	logger    *slog.Logger
	observers []func(Config)

	mu       sync.Mutex
	desired  Config
	lastSent *Config
}

// NewSynchronizer creates a synchronizer with the producer's default
// viewport as the initial intent.
func NewSynchronizer(sender Sender, options ...func(*Synchronizer)) *Synchronizer {
	s := Synchronizer{
		sender:  sender,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		desired: Config{CenterHz: DefaultCenterHz, BandwidthHz: DefaultBandwidthHz},
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Request records new operator intent and sends it if it differs from the
// last successfully sent pair. The bandwidth is clamped to the floor before
// comparison, so a request below the floor cannot cause a resend loop.
func (s *Synchronizer) Request(cfg Config) {
	cfg = cfg.Clamp()

	s.mu.Lock()
	changed := cfg != s.desired
	s.desired = cfg

	send := s.lastSent == nil || *s.lastSent != cfg
	s.mu.Unlock()

	if changed {
		for _, fn := range s.observers {
			fn(cfg)
		}
	}
	if send {
		s.send(cfg)
	}
}

// HandleLive re-sends the current intent after a transition into Live. The
// producer's per-client state does not survive reconnection, so the pair is
// sent even when it matches the last sent value.
func (s *Synchronizer) HandleLive() {
	s.mu.Lock()
	s.lastSent = nil
	cfg := s.desired
	s.mu.Unlock()

	s.send(cfg)
}

// Desired returns the current operator intent, clamped.
func (s *Synchronizer) Desired() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired
}

func (s *Synchronizer) send(cfg Config) {
	if s.sender == nil {
		return
	}
	if !s.sender.Send(spectrum.NewConfigMessage(cfg.CenterHz, cfg.BandwidthHz)) {
		return // not live, intent stays pending until HandleLive
	}

	s.mu.Lock()
	s.lastSent = &cfg
	s.mu.Unlock()

	s.logger.Debug("viewport sent",
		slog.Float64("centerHz", cfg.CenterHz),
		slog.Float64("bandwidthHz", cfg.BandwidthHz))
}
