package viewport

import (
	"time"
)

const (
	// MinBandwidthHz is the transmit floor: a set_config message never
	// carries a bandwidth below this, regardless of the requested value.
	MinBandwidthHz = 2_000_000.0

	// Producer defaults, used until the operator retunes.
	DefaultCenterHz    = 156_800_000.0
	DefaultBandwidthHz = 2_000_000.0

	// DefaultFrameRateHz is the producer's default cadence, used for the
	// visible time span until a frame reports its own rate.
	DefaultFrameRateHz = 20.0
)

// Config is the operator's viewport intent: the midpoint and width, in
// hertz, of the frequency range being visualized.
type Config struct {
	CenterHz    float64
	BandwidthHz float64
}

// Clamp returns the config with the bandwidth raised to the transmit floor.
// Clamping is idempotent, so it can run before comparison and before sending
// without triggering spurious resends.
func (c Config) Clamp() Config {
	if c.BandwidthHz < MinBandwidthHz {
		c.BandwidthHz = MinBandwidthHz
	}
	return c
}

// LeftEdgeHz returns the lowest visualized frequency.
func (c Config) LeftEdgeHz() float64 {
	return c.CenterHz - c.BandwidthHz/2
}

// RightEdgeHz returns the highest visualized frequency.
func (c Config) RightEdgeHz() float64 {
	return c.CenterHz + c.BandwidthHz/2
}

// VisibleSpan returns the amount of history a waterfall of the given height
// covers at the given frame cadence. Returns zero when the rate is unknown.
func VisibleSpan(rows int, frameRateHz float64) time.Duration {
	if rows <= 0 || frameRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(rows) / frameRateHz * float64(time.Second))
}
