package spectrum

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire message types exchanged with the spectrum producer.
const (
	MessageSpectrum  = "spectrum"
	MessageSetConfig = "set_config"
)

var (
	// ErrUnknownMessage is returned when an inbound message carries a type
	// other than "spectrum". Such messages (hello, ping, ...) are tolerated
	// and dropped by the caller.
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrMalformedMessage is returned when an inbound message cannot be
	// decoded, or its dbfs payload is not an array of numbers.
	ErrMalformedMessage = errors.New("malformed spectrum message")
)

// Frame represents a single spectrum snapshot: an ordered sequence of power
// samples in dBFS across the producer's current viewport. Samples carry no
// embedded frequency axis; the consumer maps sample index to pixel position
// by proportional resampling.
type Frame struct {
	Dbfs        []float64 `json:"dbfs"`                   // Power samples in dBFS, left edge first
	Timestamp   float64   `json:"timestamp,omitempty"`    // Producer wall clock, Unix seconds
	CenterHz    float64   `json:"center_hz,omitempty"`    // Viewport center the frame was captured at
	BandwidthHz float64   `json:"bandwidth_hz,omitempty"` // Viewport width the frame was captured at
	FrameRate   float64   `json:"frame_rate_hz,omitempty"`
	FFTSize     int       `json:"fft_size,omitempty"`
	Source      string    `json:"source,omitempty"` // Producer source label, e.g. "sdrplay" or "simulated"
}

// envelope is the inbound wire shape. Dbfs stays raw so that a non-array
// payload is detected as malformed rather than silently zero-valued.
type envelope struct {
	Type string          `json:"type"`
	Dbfs json.RawMessage `json:"dbfs"`
}

// ParseFrame validates and decodes one inbound message. Only messages with
// type "spectrum" and an array-valued dbfs field yield a Frame; anything
// else returns ErrUnknownMessage or ErrMalformedMessage for the caller to
// drop. Dropping is a tolerance policy, not a failure.
func ParseFrame(data []byte) (*Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if env.Type != MessageSpectrum {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if frame.Dbfs == nil {
		return nil, fmt.Errorf("%w: missing dbfs payload", ErrMalformedMessage)
	}
	return &frame, nil
}

// ConfigMessage is the outbound viewport update sent to the producer.
// BandwidthHz must already be clamped to the transmit floor by the caller.
type ConfigMessage struct {
	Type        string  `json:"type"`
	CenterHz    float64 `json:"center_hz"`
	BandwidthHz float64 `json:"bandwidth_hz"`
}

// NewConfigMessage builds a set_config message for the given viewport pair.
func NewConfigMessage(centerHz, bandwidthHz float64) ConfigMessage {
	return ConfigMessage{
		Type:        MessageSetConfig,
		CenterHz:    centerHz,
		BandwidthHz: bandwidthHz,
	}
}
