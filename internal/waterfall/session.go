package waterfall

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/spectrum-waterfall/internal/spectrum"
	"github.com/roman-kulish/spectrum-waterfall/internal/transport"
	"github.com/roman-kulish/spectrum-waterfall/internal/viewport"
)

// Surface is the display the rendered raster is committed to after every
// frame. Implementations must not retain the image across calls; the
// renderer keeps mutating it.
type Surface interface {
	Commit(*image.RGBA)
}

// NopSurface discards commits. Used when the raster is only consumed
// through snapshots.
type NopSurface struct{}

func (NopSurface) Commit(*image.RGBA) {}

// WithLogger sets the logger for the session and its transport.
func WithLogger(logger *slog.Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSurface sets the display surface. Defaults to NopSurface.
func WithSurface(surface Surface) func(*Session) {
	return func(s *Session) {
		s.surface = surface
	}
}

// WithViewportObserver registers a callback for viewport changes, invoked
// with the clamped config whenever the operator retunes.
func WithViewportObserver(fn func(viewport.Config)) func(*Session) {
	return func(s *Session) {
		s.observers = append(s.observers, fn)
	}
}

// Session owns the lifecycle of one waterfall view: it opens the transport
// on activation, feeds received frames into the raster, keeps the producer's
// viewport synchronized, and guarantees that teardown leaves no dangling
// timers or open sockets behind, whatever the connection state was.
type Session struct {
	client *transport.Client
	sync   *viewport.Synchronizer

	surface   Surface
	logger    *slog.Logger
	observers []func(viewport.Config)

	mu        sync.Mutex
	raster    *Raster
	frameRate float64
	source    string
}

// NewSession creates a session streaming from url into the given raster.
func NewSession(url string, raster *Raster, options ...func(*Session)) *Session {
	s := Session{
		raster:    raster,
		surface:   NopSurface{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		frameRate: viewport.DefaultFrameRateHz,
	}

	for _, option := range options {
		option(&s)
	}

	s.client = transport.New(url,
		transport.WithLogger(s.logger),
		transport.WithFrameHandler(s.handleFrame),
		transport.WithStateHandler(s.handleState))

	syncOpts := []func(*viewport.Synchronizer){viewport.WithLogger(s.logger)}
	for _, fn := range s.observers {
		syncOpts = append(syncOpts, viewport.WithObserver(fn))
	}
	s.sync = viewport.NewSynchronizer(s.client, syncOpts...)

	return &s
}

// Start initializes the view and opens the transport. The raster is assumed
// freshly sized by the caller; frames begin rendering as soon as the
// connection goes Live.
func (s *Session) Start(ctx context.Context) {
	s.logger.Info("session starting")
	s.client.Connect(ctx)
}

// Stop tears the session down: the transport socket is closed and any
// pending reconnect timer cancelled. Idempotent.
func (s *Session) Stop() {
	s.client.Close()
	s.logger.Info("session stopped")
}

// Retune records new operator intent for the viewport. The synchronizer
// clamps, dedupes and forwards it to the producer when the connection
// allows.
func (s *Session) Retune(cfg viewport.Config) {
	s.sync.Request(cfg)
}

// Resize rebuilds the backing buffer for a new displayed size and pixel
// ratio. Scroll history is reset to background; the stream keeps running
// and the next frame renders into the fresh buffer.
func (s *Session) Resize(displayWidth, displayHeight int, pixelRatio float64) {
	s.mu.Lock()
	s.raster.Resize(displayWidth, displayHeight, pixelRatio)
	img := s.raster.Image()
	s.mu.Unlock()

	if img != nil {
		s.surface.Commit(img)
	}
	s.logger.Info("surface resized",
		slog.Int("width", displayWidth),
		slog.Int("height", displayHeight),
		slog.Float64("pixelRatio", pixelRatio))
}

// State returns the transport connection state for status display.
func (s *Session) State() transport.State {
	return s.client.State()
}

// Stats returns the transport message counters.
func (s *Session) Stats() transport.Stats {
	return s.client.Stats()
}

// Viewport returns the current operator intent.
func (s *Session) Viewport() viewport.Config {
	return s.sync.Desired()
}

// FrameRate returns the cadence last reported by the producer, or the
// default until one is seen.
func (s *Session) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameRate
}

// Source returns the producer's source label from the last frame, e.g.
// "sdrplay" or "simulated".
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Snapshot encodes the current raster as PNG, annotated when ann is not
// nil. Safe to call while streaming.
func (s *Session) Snapshot(w io.Writer, ann *Annotator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteSnapshot(w, s.raster, SnapshotInfo{
		Viewport:  s.sync.Desired(),
		Source:    s.source,
		FrameRate: s.frameRate,
	}, ann)
}

// handleFrame runs on the transport's delivery goroutine, once per valid
// frame in arrival order. Rendering is synchronous; there is no coalescing
// or dropping, a slow paint simply delays the next frame.
func (s *Session) handleFrame(frame *spectrum.Frame) {
	s.mu.Lock()
	s.raster.Push(frame.Dbfs)
	if frame.FrameRate > 0 {
		s.frameRate = frame.FrameRate
	}
	if frame.Source != "" {
		s.source = frame.Source
	}
	img := s.raster.Image()
	s.mu.Unlock()

	if img != nil {
		s.surface.Commit(img)
	}
}

func (s *Session) handleState(state transport.State) {
	s.logger.Info("connection state", slog.String("state", string(state)))

	// The producer's per-client viewport does not survive reconnection;
	// re-sync intent on every transition into Live.
	if state == transport.StateLive {
		s.sync.HandleLive()
	}
}
