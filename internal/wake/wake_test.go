package wake

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/livewire/internal/clock"
)

func newTestDetector(interval, threshold time.Duration) (*Detector, *atomic.Int32) {
	var fired atomic.Int32
	d := NewDetector(clock.NewManual(time.Unix(0, 0)), interval, threshold,
		func(string) { fired.Add(1) }, zerolog.Nop())
	return d, &fired
}

func TestStepIgnoresNormalCadence(t *testing.T) {
	d, fired := newTestDetector(15*time.Second, 45*time.Second)
	d.last = time.Unix(0, 0)

	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		now = now.Add(15 * time.Second)
		assert.False(t, d.step(now), "tick %d misread as a wake", i)
	}
	assert.Zero(t, fired.Load())
}

func TestStepDetectsSuspendGap(t *testing.T) {
	d, fired := newTestDetector(15*time.Second, 45*time.Second)
	d.last = time.Unix(0, 0)

	// Laptop lid closed for ten minutes.
	assert.True(t, d.step(time.Unix(600, 0)))
	assert.Equal(t, int32(1), fired.Load())

	// Next tick is back on cadence: no second wake.
	assert.False(t, d.step(time.Unix(615, 0)))
	assert.Equal(t, int32(1), fired.Load())
}

func TestStepToleratesSlightJitter(t *testing.T) {
	d, fired := newTestDetector(15*time.Second, 45*time.Second)
	d.last = time.Unix(0, 0)

	// A GC pause or scheduler delay inside the threshold is not a wake.
	assert.False(t, d.step(time.Unix(44, 0)))
	assert.Zero(t, fired.Load())
}

func TestTrigger(t *testing.T) {
	d, fired := newTestDetector(0, 0)
	d.Trigger("sigcont")
	assert.Equal(t, int32(1), fired.Load())
}

func TestDefaultsApplied(t *testing.T) {
	d, _ := newTestDetector(0, 0)
	assert.Equal(t, DefaultInterval, d.interval)
	assert.Equal(t, 3*DefaultInterval, d.threshold)
}

func TestStartAndCloseDoNotLeak(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	var fired atomic.Int32
	d := NewDetector(mc, 15*time.Second, 45*time.Second,
		func(string) { fired.Add(1) }, zerolog.Nop())

	d.Start()
	d.Start()

	require.Eventually(t, func() bool { return mc.Pending() == 1 },
		time.Second, 5*time.Millisecond, "scan ticker never armed")

	d.Close()
	d.Close()
	require.Eventually(t, func() bool { return mc.Pending() == 0 },
		time.Second, 5*time.Millisecond, "scan ticker not released")
}
