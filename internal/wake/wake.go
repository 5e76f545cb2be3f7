// Package wake notices when the process regains the foreground after a
// suspend: a laptop lid reopening, a container unfreezing, a SIGCONT after
// job control. A process that slept missed heartbeats and probably holds a
// dead socket, so the supervisor gets a nudge to reconnect.
//
// Detection is a tick-gap scan: a ticker that should fire every interval
// but observes a gap well past it means the process was not running in
// between. This is the portable analog of a browser tab returning to
// visibility.
package wake

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticenet/livewire/internal/clock"
)

// Defaults for the gap scan.
const (
	DefaultInterval  = 15 * time.Second
	DefaultThreshold = 45 * time.Second
)

// Detector watches for suspend/resume gaps and reports them to a callback.
type Detector struct {
	clk       clock.Clock
	interval  time.Duration
	threshold time.Duration
	notify    func(source string)
	log       zerolog.Logger

	last time.Time // scan goroutine only

	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
}

// NewDetector builds a detector that calls notify("resume") when a gap
// longer than threshold is observed between ticks. notify must be safe to
// call from the detector goroutine.
func NewDetector(clk clock.Clock, interval, threshold time.Duration, notify func(source string), log zerolog.Logger) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= interval {
		threshold = 3 * interval
	}
	return &Detector{
		clk:       clk,
		interval:  interval,
		threshold: threshold,
		notify:    notify,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Start launches the scan goroutine. Calling Start twice is a no-op.
func (d *Detector) Start() {
	d.startOnce.Do(func() {
		go d.scan()
	})
}

// Trigger reports an externally observed wake, e.g. a SIGCONT or an
// operator poke on the control socket.
func (d *Detector) Trigger(source string) {
	d.log.Debug().Str("source", source).Msg("wake triggered")
	d.notify(source)
}

// Close stops the scan goroutine.
func (d *Detector) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Detector) scan() {
	tick := d.clk.NewTicker(d.interval)
	defer tick.Stop()
	d.last = d.clk.Now()
	for {
		select {
		case <-tick.C():
			d.step(d.clk.Now())
		case <-d.done:
			return
		}
	}
}

// step records one tick observation and reports whether it revealed a
// suspend gap.
func (d *Detector) step(now time.Time) bool {
	gap := now.Sub(d.last)
	d.last = now
	if gap <= d.threshold {
		return false
	}
	d.log.Info().Dur("gap", gap).Msg("suspend gap detected")
	d.notify("resume")
	return true
}
