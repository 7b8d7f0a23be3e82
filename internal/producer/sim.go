package producer

import (
	"math"
	"math/rand"
	"time"
)

const (
	// FFTSize is the number of bins per simulated frame.
	FFTSize = 1024

	// FrameRateHz is the default producer cadence.
	FrameRateHz = 20.0

	simNoiseFloor = -104.0 // dBFS
	simNoiseSigma = 2.0
	simRippleAmp  = 2.5
)

// Moving synthetic carriers so a connected UI visibly reacts. Positions are
// fractions of the visualized span.
var (
	carrierPositions = []float64{0.23, 0.52, 0.77}
	carrierDriftHz   = []float64{0.035, 0.055, 0.025}
)

// SimSource synthesizes spectrum rows: a gaussian noise floor with a slow
// ripple and three drifting carriers. It stands in for the hardware capture
// pipeline when no SDR is available.
type SimSource struct {
	phase float64
	rng   *rand.Rand
}

// NewSimSource creates a simulated source seeded from the clock.
func NewSimSource() *SimSource {
	return &SimSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next produces one frame of FFTSize dBFS samples for the given center
// frequency. The center feeds the phase advance so retuning visibly shifts
// the pattern.
func (s *SimSource) Next(centerHz float64, now time.Time) []float64 {
	values := make([]float64, FFTSize)
	for i := range values {
		x := float64(i) / FFTSize
		noise := s.rng.NormFloat64() * simNoiseSigma
		ripple := simRippleAmp * math.Sin(x*2*math.Pi*3+s.phase)
		values[i] = simNoiseFloor + noise + ripple
	}

	secs := float64(now.UnixNano()) / float64(time.Second)
	for idx, base := range carrierPositions {
		pos := math.Mod(base+math.Sin(secs*carrierDriftHz[idx])*0.03, 1.0)
		center := int(pos * FFTSize)
		amp := -55.0 - float64(idx)*7.0

		for delta := -3; delta <= 3; delta++ {
			tap := center + delta
			if tap < 0 || tap >= FFTSize {
				continue
			}
			bump := amp - math.Abs(float64(delta))*6.0
			values[tap] = math.Max(values[tap], bump)
		}
	}

	s.phase += 0.2 + math.Mod(centerHz, 10_000_000)/80_000_000
	return values
}
