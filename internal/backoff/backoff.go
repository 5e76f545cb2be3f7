// Package backoff implements the reconnect schedule for the live channel:
// exponential growth from a base delay, a hard cap, and a ceiling on the
// number of automatic attempts before the supervisor gives up.
package backoff

import "time"

const (
	// DefaultBase is the delay before the first automatic reconnect.
	DefaultBase = time.Second
	// DefaultCap bounds every delay regardless of attempt number.
	DefaultCap = 30 * time.Second
	// DefaultMaxAttempts is how many consecutive failures are retried
	// before the channel is declared dead.
	DefaultMaxAttempts = 5
)

// Policy is a deterministic reconnect schedule. The zero value is not
// usable; construct with Default or fill all fields.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Default returns the production schedule: 1s, 2s, 4s, 8s, 16s, then stop.
func Default() Policy {
	return Policy{Base: DefaultBase, Cap: DefaultCap, MaxAttempts: DefaultMaxAttempts}
}

// Delay returns the wait before reconnect attempt n, 1-indexed: the first
// retry waits Base, each subsequent retry doubles, and the result never
// exceeds Cap. Attempts below 1 are treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 2^(n-1) overflows quickly; anything past 2^32 is far beyond Cap.
	if attempt > 32 {
		return p.Cap
	}
	d := p.Base << uint(attempt-1)
	if d > p.Cap || d < p.Base {
		return p.Cap
	}
	return d
}

// Exhausted reports whether attempts has reached the retry ceiling.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
