package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance or Set is called.
// Timers and tickers fire synchronously inside Advance, in deadline order,
// which makes timer-driven state machines fully deterministic under test.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
}

// NewManual returns a Manual clock pinned to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *Manual) NewTimer(d time.Duration) Timer {
	return m.addWaiter(d, 0)
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	return manualTicker{m.addWaiter(d, d)}
}

// manualTicker adapts manualWaiter's Stop() bool to the Ticker interface.
type manualTicker struct{ *manualWaiter }

func (t manualTicker) Stop() { t.manualWaiter.Stop() }

// Advance moves time forward by d, firing every timer and ticker whose
// deadline falls inside the window. Fires happen in deadline order and the
// clock reads the fire's own deadline while each one is delivered.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set jumps the clock to t, firing anything due on the way.
func (m *Manual) Set(t time.Time) {
	for {
		w, at := m.nextDue(t)
		if w == nil {
			break
		}
		w.fire(at)
	}
	m.mu.Lock()
	if t.After(m.now) {
		m.now = t
	}
	m.mu.Unlock()
}

// Pending reports how many timers and tickers are currently armed. A
// supervisor that has been torn down cleanly leaves this at zero.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) addWaiter(d, period time.Duration) *manualWaiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{
		clock:    m,
		ch:       make(chan time.Time, 1),
		deadline: m.now.Add(d),
		period:   period,
	}
	m.waiters = append(m.waiters, w)
	return w
}

// nextDue picks the earliest armed waiter due at or before t, advances the
// clock to its deadline and re-arms it if periodic. Returns nil when nothing
// further is due.
func (m *Manual) nextDue(t time.Time) (*manualWaiter, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	m.waiters = live
	sort.SliceStable(m.waiters, func(i, j int) bool {
		return m.waiters[i].deadline.Before(m.waiters[j].deadline)
	})
	for _, w := range m.waiters {
		if w.deadline.After(t) {
			continue
		}
		at := w.deadline
		if at.After(m.now) {
			m.now = at
		}
		if w.period > 0 {
			w.deadline = at.Add(w.period)
		} else {
			w.stopped = true
		}
		return w, at
	}
	return nil, time.Time{}
}

type manualWaiter struct {
	clock    *Manual
	ch       chan time.Time
	deadline time.Time
	period   time.Duration
	stopped  bool
}

func (w *manualWaiter) C() <-chan time.Time { return w.ch }

func (w *manualWaiter) fire(at time.Time) {
	select {
	case w.ch <- at:
	default:
	}
}

func (w *manualWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	was := !w.stopped
	w.stopped = true
	return was
}
