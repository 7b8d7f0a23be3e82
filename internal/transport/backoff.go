package transport

import "time"

const (
	reconnectBase = 500 * time.Millisecond
	reconnectStep = 400 * time.Millisecond
	reconnectMax  = 5 * time.Second
)

// ReconnectDelay returns the delay before the given reconnect attempt,
// 1-based. The schedule is linear and capped (900ms, 1300ms, ..., 5000ms)
// rather than exponential: fast recovery with bounded worst-case retry
// pressure.
func ReconnectDelay(attempt int) time.Duration {
	d := reconnectBase + time.Duration(attempt)*reconnectStep
	if d > reconnectMax {
		return reconnectMax
	}
	return d
}
