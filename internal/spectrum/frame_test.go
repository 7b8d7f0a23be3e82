package spectrum

import (
	"errors"
	"testing"
)

func TestParseFrame(t *testing.T) {
	raw := []byte(`{"type":"spectrum","dbfs":[-104.5,-98.2,-60.0],"frame_rate_hz":20,"source":"simulated","center_hz":156800000,"bandwidth_hz":2000000}`)

	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}

	if len(frame.Dbfs) != 3 {
		t.Errorf("Expected 3 samples, got %d", len(frame.Dbfs))
	}
	if frame.Dbfs[0] != -104.5 {
		t.Errorf("Expected first sample -104.5, got %f", frame.Dbfs[0])
	}
	if frame.FrameRate != 20 {
		t.Errorf("Expected frame rate 20, got %f", frame.FrameRate)
	}
	if frame.Source != "simulated" {
		t.Errorf("Expected source 'simulated', got %q", frame.Source)
	}
	if frame.CenterHz != 156_800_000 {
		t.Errorf("Expected center 156.8 MHz, got %f", frame.CenterHz)
	}
}

func TestParseFrame_EmptySamples(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"type":"spectrum","dbfs":[]}`))
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if len(frame.Dbfs) != 0 {
		t.Errorf("Expected empty sample slice, got %d samples", len(frame.Dbfs))
	}
}

func TestParseFrame_Rejected(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want error
	}{
		{"ping message", `{"type":"ping"}`, ErrUnknownMessage},
		{"hello message", `{"type":"hello","center_hz":156800000}`, ErrUnknownMessage},
		{"missing type", `{"dbfs":[-100]}`, ErrUnknownMessage},
		{"dbfs not an array", `{"type":"spectrum","dbfs":"nope"}`, ErrMalformedMessage},
		{"dbfs missing", `{"type":"spectrum"}`, ErrMalformedMessage},
		{"dbfs with non-numbers", `{"type":"spectrum","dbfs":[-100,"x"]}`, ErrMalformedMessage},
		{"invalid JSON", `{"type":`, ErrMalformedMessage},
		{"non-object payload", `[1,2,3]`, ErrMalformedMessage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseFrame([]byte(tc.raw)); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewConfigMessage(t *testing.T) {
	msg := NewConfigMessage(156_800_000, 2_000_000)
	if msg.Type != MessageSetConfig {
		t.Errorf("Expected type %q, got %q", MessageSetConfig, msg.Type)
	}
	if msg.CenterHz != 156_800_000 || msg.BandwidthHz != 2_000_000 {
		t.Errorf("Unexpected message payload: %+v", msg)
	}
}
