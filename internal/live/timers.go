package live

import (
	"time"

	"github.com/latticenet/livewire/internal/clock"
)

// timerSet owns every timer the supervisor loop arms. Each timer is created
// and cancelled through a named pair so teardown can prove nothing is left
// running: cancelAll stops whatever is armed and after it returns no fire
// can be observed.
//
// Only the loop goroutine touches a timerSet.
type timerSet struct {
	clock clock.Clock

	heartbeat clock.Ticker
	retry     clock.Timer
}

func newTimerSet(c clock.Clock) *timerSet {
	return &timerSet{clock: c}
}

// startHeartbeat arms the periodic probe ticker. Restarting replaces any
// previous ticker.
func (t *timerSet) startHeartbeat(interval time.Duration) {
	t.stopHeartbeat()
	t.heartbeat = t.clock.NewTicker(interval)
}

func (t *timerSet) stopHeartbeat() {
	if t.heartbeat != nil {
		t.heartbeat.Stop()
		t.heartbeat = nil
	}
}

// heartbeatC returns nil when no ticker is armed, which parks the
// corresponding select arm.
func (t *timerSet) heartbeatC() <-chan time.Time {
	if t.heartbeat == nil {
		return nil
	}
	return t.heartbeat.C()
}

// armRetry schedules a single reconnect attempt. Re-arming replaces any
// pending attempt.
func (t *timerSet) armRetry(delay time.Duration) {
	t.cancelRetry()
	t.retry = t.clock.NewTimer(delay)
}

func (t *timerSet) cancelRetry() {
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
}

func (t *timerSet) retryC() <-chan time.Time {
	if t.retry == nil {
		return nil
	}
	return t.retry.C()
}

// cancelAll is the teardown sweep.
func (t *timerSet) cancelAll() {
	t.stopHeartbeat()
	t.cancelRetry()
}
