package provider

import "time"

// BackoffPolicy bounds retries of rate-limited or timed-out requests.
type BackoffPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Delay returns the wait before retry number attempt (0-based), doubling
// from InitialBackoff and capped at MaxBackoff. Pure function of the
// attempt count.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
