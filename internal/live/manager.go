// Package live supervises the persistent notification channel for a
// signed-in user: one websocket at a time, automatic reconnection with
// exponential backoff, heartbeat probing, and dispatch of inbound frames
// into unread counts, events and desktop alerts.
//
// All supervisor state lives on a single goroutine fed by a mailbox, so
// connects, disconnects, timer fires and inbound frames are handled in
// arrival order with no shared-state locking in the state machine itself.
package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/latticenet/livewire/internal/backoff"
	"github.com/latticenet/livewire/internal/clock"
	"github.com/latticenet/livewire/internal/dedup"
	"github.com/latticenet/livewire/internal/session"
	"github.com/latticenet/livewire/internal/transport"
)

// Defaults applied by NewManager when no option overrides them.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultEventBuffer       = 16

	dedupTimeout = time.Second
)

// Alerter raises a user-facing alert for a delivered notification.
// Implementations must not block; the supervisor calls this inline.
type Alerter interface {
	Raise(title, message string)
}

// MetricsCallback receives counter and gauge updates from the supervisor.
// Nil callbacks are allowed and cheap.
type MetricsCallback func(metric string, value float64, tags map[string]string)

// Snapshot is a point-in-time view of the supervisor, safe to read from any
// goroutine.
type Snapshot struct {
	Status      Status    `json:"status"`
	Unread      int       `json:"unread"`
	Retries     int       `json:"retries"`
	UserID      string    `json:"user_id,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Manager owns the live channel for whatever identity its session store
// holds. Construct with NewManager, call Start, then drive it with Connect,
// Wake and identity changes; Close tears everything down.
type Manager struct {
	dialer   transport.Dialer
	identity *session.Store
	clk      clock.Clock
	policy   backoff.Policy
	dedup    dedup.Store
	alerter  Alerter
	metric   MetricsCallback
	limiter  *rate.Limiter
	log      zerolog.Logger

	heartbeatEvery time.Duration
	dialTimeout    time.Duration

	broker  *Broker
	mailbox chan any

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	loopDone   chan struct{}
	netWG      sync.WaitGroup
	started    atomic.Bool
	closeOnce  sync.Once

	snapMu sync.RWMutex
	snap   Snapshot

	// Loop-owned state. Only the run goroutine touches these.
	st       *timerSet
	status   Status
	ident    session.Identity
	conn     transport.Conn
	gen      uint64
	retries  int
	lastPing time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the supervisor logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock injects the time source. Tests use a manual clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clk = c }
}

// WithBackoff replaces the reconnect schedule.
func WithBackoff(p backoff.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithHeartbeatInterval changes the probe cadence.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) { m.heartbeatEvery = d }
}

// WithDialTimeout bounds each individual open attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

// WithDedup replaces the duplicate-notification store.
func WithDedup(s dedup.Store) Option {
	return func(m *Manager) { m.dedup = s }
}

// WithAlerter wires desktop (or other) alerts for delivered notifications.
func WithAlerter(a Alerter) Option {
	return func(m *Manager) { m.alerter = a }
}

// WithMetrics wires counter and gauge reporting.
func WithMetrics(cb MetricsCallback) Option {
	return func(m *Manager) { m.metric = cb }
}

// WithSendLimit throttles caller-originated sends to perSec with the given
// burst. Throttled sends fail fast with ErrSendThrottled.
func WithSendLimit(perSec float64, burst int) Option {
	return func(m *Manager) { m.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithEventBuffer sets the per-subscriber event channel capacity.
func WithEventBuffer(n int) Option {
	return func(m *Manager) { m.broker = NewBroker(n) }
}

// NewManager builds a supervisor bound to dialer and identity. The manager
// does nothing until Start.
func NewManager(dialer transport.Dialer, identity *session.Store, opts ...Option) *Manager {
	m := &Manager{
		dialer:         dialer,
		identity:       identity,
		clk:            clock.System(),
		policy:         backoff.Default(),
		log:            zerolog.Nop(),
		heartbeatEvery: DefaultHeartbeatInterval,
		dialTimeout:    DefaultDialTimeout,
		broker:         NewBroker(DefaultEventBuffer),
		mailbox:        make(chan any, 64),
		loopDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dedup == nil {
		m.dedup = dedup.NewMemory(dedup.DefaultTTL)
	}
	// Each supervisor tags its log lines so hosts running several (tests,
	// multi-account setups) can tell them apart.
	m.log = m.log.With().Str("channel", uuid.NewString()[:8]).Logger()
	m.st = newTimerSet(m.clk)
	return m
}

// Start launches the supervisor loop and begins watching the identity
// store. It does not open a channel; call Connect for that. Cancelling ctx
// is equivalent to Close.
func (m *Manager) Start(ctx context.Context) error {
	if m.started.Swap(true) {
		return nil
	}
	m.lifeCtx, m.lifeCancel = context.WithCancel(ctx)
	m.ident = m.identity.Current()
	m.updateSnapshot(func(s *Snapshot) { s.UserID = m.ident.UserID })
	go m.watchIdentity()
	go m.run()
	m.log.Debug().Str("user", m.ident.UserID).Msg("live supervisor started")
	return nil
}

// Close tears the supervisor down: the channel is closed with a normal
// closure handshake, every timer is cancelled before Close returns, and all
// event subscribers are released. An in-flight dial is cancelled through
// its context and waited for, then any socket it delivered anyway is
// closed, so no channel can outlive Close. Safe to call more than once.
func (m *Manager) Close() error {
	if !m.started.Load() {
		return nil
	}
	m.closeOnce.Do(func() {
		m.lifeCancel()
		<-m.loopDone
		m.netWG.Wait()
		m.drainMailbox()
	})
	return nil
}

// drainMailbox releases sockets from dial results that raced teardown into
// the buffered mailbox after the loop stopped reading it.
func (m *Manager) drainMailbox() {
	for {
		select {
		case msg := <-m.mailbox:
			if dd, ok := msg.(dialDoneMsg); ok && dd.conn != nil {
				dd.conn.Close()
			}
		default:
			return
		}
	}
}

// Connect asks the supervisor to open the channel. Calling while a channel
// is open or being pursued is a no-op, so callers never stack sockets.
func (m *Manager) Connect() {
	m.post(connectMsg{trigger: "manual"})
}

// Wake tells the supervisor the app returned to the foreground. If an
// authenticated identity is present and no channel is open or in pursuit,
// a fresh connect is attempted, including from the error state.
func (m *Manager) Wake(source string) {
	m.post(wakeMsg{source: source})
}

// ResetUnread marks all notifications as seen. Idempotent.
func (m *Manager) ResetUnread() {
	m.post(resetUnreadMsg{})
}

// Send writes a caller-supplied payload to the open channel. When the
// channel is not open the payload is dropped with a warning and
// ErrNotConnected; nothing is ever queued for later delivery.
func (m *Manager) Send(payload any) error {
	if m.limiter != nil && !m.limiter.Allow() {
		m.log.Warn().Msg("send dropped, rate limit exceeded")
		return ErrSendThrottled
	}
	reply := make(chan error, 1)
	if !m.post(sendMsg{payload: payload, reply: reply}) {
		m.log.Warn().Msg("send dropped, supervisor not running")
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.lifeCtx.Done():
		return ErrClosed
	}
}

// Events subscribes to supervisor events until ctx is done. Slow consumers
// lose events instead of blocking the supervisor.
func (m *Manager) Events(ctx context.Context) <-chan Event {
	return m.broker.Subscribe(ctx)
}

// Status returns the current channel status.
func (m *Manager) Status() Status {
	return m.Snapshot().Status
}

// Unread returns the current unread notification count.
func (m *Manager) Unread() int {
	return m.Snapshot().Unread
}

// Snapshot returns the full observable state.
func (m *Manager) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// Mailbox messages. Everything the supervisor reacts to arrives as one of
// these, in order.
type (
	connectMsg     struct{ trigger string }
	wakeMsg        struct{ source string }
	resetUnreadMsg struct{}
	identityMsg    struct{ id session.Identity }
	sendMsg        struct {
		payload any
		reply   chan error
	}
	dialDoneMsg struct {
		gen  uint64
		conn transport.Conn
		err  error
	}
	frameMsg struct {
		gen uint64
		raw []byte
	}
	connLostMsg struct {
		gen uint64
		err error
	}
)

func (m *Manager) post(msg any) bool {
	if !m.started.Load() {
		return false
	}
	select {
	case m.mailbox <- msg:
		return true
	case <-m.lifeCtx.Done():
		return false
	}
}

func (m *Manager) run() {
	defer close(m.loopDone)
	for {
		select {
		case msg := <-m.mailbox:
			m.handle(msg)
		case <-m.st.heartbeatC():
			m.onHeartbeat()
		case <-m.st.retryC():
			m.onRetryFire()
		case <-m.lifeCtx.Done():
			m.teardown("shutdown")
			return
		}
	}
}

func (m *Manager) handle(msg any) {
	switch v := msg.(type) {
	case connectMsg:
		m.onConnect(v.trigger)
	case wakeMsg:
		m.onWake(v.source)
	case resetUnreadMsg:
		m.onResetUnread()
	case identityMsg:
		m.onIdentity(v.id)
	case sendMsg:
		m.onSend(v)
	case dialDoneMsg:
		m.onDialDone(v)
	case frameMsg:
		m.onFrame(v)
	case connLostMsg:
		m.onConnLost(v)
	}
}

func (m *Manager) watchIdentity() {
	ch := m.identity.Watch(m.lifeCtx)
	for id := range ch {
		select {
		case m.mailbox <- identityMsg{id: id}:
		case <-m.lifeCtx.Done():
			return
		}
	}
}

func (m *Manager) updateSnapshot(fn func(*Snapshot)) {
	m.snapMu.Lock()
	fn(&m.snap)
	m.snapMu.Unlock()
}

func (m *Manager) emit(metric string, value float64, tags map[string]string) {
	if m.metric != nil {
		m.metric(metric, value, tags)
	}
}
