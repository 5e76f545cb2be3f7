// Package clock abstracts time so connection supervision can be driven
// deterministically in tests. Production code uses System; tests use Manual
// and advance it by hand.
package clock

import "time"

// Clock creates timers and tickers and reports the current time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer fires once on C after its duration elapses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker fires repeatedly on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System returns a Clock backed by the runtime clock.
func System() Clock { return sysClock{} }

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now() }

func (sysClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (sysClock) NewTimer(d time.Duration) Timer { return sysTimer{time.NewTimer(d)} }

func (sysClock) NewTicker(d time.Duration) Ticker { return sysTicker{time.NewTicker(d)} }

type sysTimer struct{ t *time.Timer }

func (s sysTimer) C() <-chan time.Time { return s.t.C }
func (s sysTimer) Stop() bool          { return s.t.Stop() }

type sysTicker struct{ t *time.Ticker }

func (s sysTicker) C() <-chan time.Time { return s.t.C }
func (s sysTicker) Stop()               { s.t.Stop() }
