package live

import (
	"context"
	"time"

	"github.com/latticenet/livewire/internal/session"
	"github.com/latticenet/livewire/internal/transport"
	"github.com/latticenet/livewire/internal/wire"
)

// Transitions. Every function in this file runs on the loop goroutine and
// is the only place supervisor state changes. The generation counter
// advances whenever the current channel (or pursuit of one) is abandoned,
// so results from stale dials and reads identify themselves and are
// discarded instead of resurrecting a dead channel.

func (m *Manager) setStatus(next Status, reason string) {
	if next == m.status {
		return
	}
	prev := m.status
	m.status = next
	m.updateSnapshot(func(s *Snapshot) {
		s.Status = next
		switch next {
		case StatusConnected:
			s.ConnectedAt = m.clk.Now()
			s.LastError = ""
		default:
			s.ConnectedAt = time.Time{}
		}
	})
	m.emit("livewire_status", float64(next), nil)
	m.log.Info().
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("reason", reason).
		Msg("live channel status")
	m.broker.Publish(Event{
		Type:     EventStatus,
		At:       m.clk.Now(),
		Status:   next,
		Previous: prev,
		Reason:   reason,
	})
}

// onConnect is the single entry point for opening a channel. Calls while
// one is open or being pursued are ignored; calls without an authenticated
// identity quietly stay disconnected.
func (m *Manager) onConnect(trigger string) {
	switch m.status {
	case StatusConnecting, StatusConnected:
		m.log.Debug().
			Str("trigger", trigger).
			Stringer("status", m.status).
			Msg("connect ignored")
		return
	}
	if !m.ident.Valid() {
		m.log.Debug().Str("trigger", trigger).Msg("connect skipped, not signed in")
		return
	}
	m.setStatus(StatusConnecting, trigger)
	m.beginDial(trigger)
}

// beginDial opens a new channel generation and dials off-loop. The result
// comes back as a dialDoneMsg carrying the generation it belongs to.
func (m *Manager) beginDial(trigger string) {
	m.gen++
	gen := m.gen
	userID := m.ident.UserID
	m.updateSnapshot(func(s *Snapshot) { s.UserID = userID })
	m.emit("livewire_connect_attempts_total", 1, map[string]string{"trigger": trigger})
	m.log.Debug().Str("user", userID).Str("trigger", trigger).Msg("opening live channel")

	m.netWG.Add(1)
	go func() {
		defer m.netWG.Done()
		ctx, cancel := context.WithTimeout(m.lifeCtx, m.dialTimeout)
		defer cancel()
		conn, err := m.dialer.Dial(ctx, userID)
		select {
		case m.mailbox <- dialDoneMsg{gen: gen, conn: conn, err: err}:
		case <-m.lifeCtx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (m *Manager) onDialDone(msg dialDoneMsg) {
	if msg.gen != m.gen || m.status != StatusConnecting {
		// A dial that lost the race against teardown or an identity
		// switch. Its socket must not survive.
		if msg.conn != nil {
			msg.conn.Close()
		}
		return
	}
	if msg.err != nil {
		m.log.Warn().Err(msg.err).Msg("live channel open failed")
		m.emit("livewire_connect_failures_total", 1, nil)
		m.channelFailed("open failed", msg.err)
		return
	}
	m.conn = msg.conn
	m.retries = 0
	m.lastPing = time.Time{}
	m.updateSnapshot(func(s *Snapshot) { s.Retries = 0 })
	m.st.startHeartbeat(m.heartbeatEvery)
	m.readFrom(msg.gen, msg.conn)
	// Status flips last: observers that see connected may rely on the
	// heartbeat being armed and the reader running.
	m.setStatus(StatusConnected, "channel open")
}

// readFrom pumps inbound frames into the mailbox until the conn dies.
func (m *Manager) readFrom(gen uint64, conn transport.Conn) {
	m.netWG.Add(1)
	go func() {
		defer m.netWG.Done()
		for {
			raw, err := conn.ReadFrame()
			if err != nil {
				select {
				case m.mailbox <- connLostMsg{gen: gen, err: err}:
				case <-m.lifeCtx.Done():
				}
				return
			}
			select {
			case m.mailbox <- frameMsg{gen: gen, raw: raw}:
			case <-m.lifeCtx.Done():
				return
			}
		}
	}()
}

func (m *Manager) onConnLost(msg connLostMsg) {
	if msg.gen != m.gen {
		return
	}
	kind := "unclean"
	if transport.IsCleanClose(msg.err) {
		kind = "server close"
	}
	m.log.Warn().Err(msg.err).Str("close", kind).Msg("live channel lost")
	m.emit("livewire_disconnects_total", 1, map[string]string{"close": kind})
	m.channelFailed("connection lost", msg.err)
}

// channelFailed handles any involuntary loss of the channel, whether a dial
// that never opened or an established conn that dropped. Either another
// attempt is scheduled on the backoff schedule or, past the ceiling, the
// supervisor parks in the error state until an external trigger.
func (m *Manager) channelFailed(reason string, err error) {
	m.discardConn(false, reason)
	if err != nil {
		m.updateSnapshot(func(s *Snapshot) { s.LastError = err.Error() })
	}
	if m.policy.Exhausted(m.retries) {
		m.log.Error().
			Err(err).
			Int("attempts", m.retries).
			Msg("live channel reconnect attempts exhausted")
		m.emit("livewire_retries_exhausted_total", 1, nil)
		m.updateSnapshot(func(s *Snapshot) { s.LastError = ErrRetriesExhausted.Error() })
		m.setStatus(StatusError, reason)
		return
	}
	m.retries++
	delay := m.policy.Delay(m.retries)
	m.st.armRetry(delay)
	// Snapshot updates after arming: observers that see the new retry
	// count may rely on the timer being in place.
	m.updateSnapshot(func(s *Snapshot) { s.Retries = m.retries })
	m.emit("livewire_reconnects_scheduled_total", 1, nil)
	m.log.Warn().
		Err(err).
		Int("attempt", m.retries).
		Dur("delay", delay).
		Msg("live channel retry scheduled")
	m.setStatus(StatusConnecting, reason)
}

func (m *Manager) onRetryFire() {
	m.st.cancelRetry()
	if m.status != StatusConnecting || !m.ident.Valid() {
		return
	}
	m.beginDial("retry")
}

// discardConn abandons the current generation: any in-flight dial result
// and any frames still in the mailbox become stale, the heartbeat stops,
// and the socket (if one is open) is released.
func (m *Manager) discardConn(graceful bool, reason string) {
	m.gen++
	m.st.stopHeartbeat()
	if m.conn == nil {
		return
	}
	conn := m.conn
	m.conn = nil
	if graceful {
		if err := conn.CloseGraceful(reason); err != nil {
			m.log.Debug().Err(err).Msg("close handshake failed")
		}
		return
	}
	conn.Close()
}

// cleanClose is the voluntary shutdown path: no retry is left pending and
// the peer gets a proper closing handshake.
func (m *Manager) cleanClose(reason string) {
	m.st.cancelRetry()
	m.discardConn(true, reason)
	m.setStatus(StatusDisconnected, reason)
}

func (m *Manager) onIdentity(id session.Identity) {
	prev := m.ident
	m.ident = id
	m.updateSnapshot(func(s *Snapshot) { s.UserID = id.UserID })
	switch {
	case !id.Valid():
		if m.status != StatusDisconnected {
			m.log.Info().Msg("identity cleared, closing live channel")
			m.cleanClose("signed out")
		}
	case prev.Valid() && prev.UserID != id.UserID &&
		(m.status == StatusConnected || m.status == StatusConnecting):
		m.log.Info().Str("user", id.UserID).Msg("identity changed, reopening live channel")
		m.cleanClose("identity changed")
		m.onConnect("identity change")
	case m.status == StatusDisconnected || m.status == StatusError:
		m.onConnect("signed in")
	}
}

func (m *Manager) onWake(source string) {
	m.emit("livewire_wakes_total", 1, map[string]string{"source": source})
	if m.status == StatusConnected || m.status == StatusConnecting {
		m.log.Debug().Str("source", source).Msg("wake ignored, channel already active")
		return
	}
	if !m.ident.Valid() {
		m.log.Debug().Str("source", source).Msg("wake ignored, not signed in")
		return
	}
	m.log.Info().Str("source", source).Msg("wake detected, reopening live channel")
	m.onConnect("wake:" + source)
}

func (m *Manager) onHeartbeat() {
	if m.status != StatusConnected || m.conn == nil {
		return
	}
	m.lastPing = m.clk.Now()
	if err := m.conn.WriteFrame(wire.NewPing(m.lastPing)); err != nil {
		m.log.Warn().Err(err).Msg("heartbeat write failed")
		m.emit("livewire_heartbeat_failures_total", 1, nil)
		m.channelFailed("heartbeat write failed", err)
		return
	}
	m.emit("livewire_heartbeats_total", 1, nil)
	m.log.Debug().Msg("heartbeat sent")
}

func (m *Manager) onSend(msg sendMsg) {
	if m.status != StatusConnected || m.conn == nil {
		m.log.Warn().Msg("send dropped, channel not open")
		msg.reply <- ErrNotConnected
		return
	}
	if err := m.conn.WriteFrame(msg.payload); err != nil {
		m.log.Warn().Err(err).Msg("send write failed")
		msg.reply <- err
		m.channelFailed("send write failed", err)
		return
	}
	m.emit("livewire_sends_total", 1, nil)
	msg.reply <- nil
}

func (m *Manager) onResetUnread() {
	changed := false
	m.updateSnapshot(func(s *Snapshot) {
		changed = s.Unread != 0
		s.Unread = 0
	})
	m.emit("livewire_unread", 0, nil)
	if changed {
		m.log.Debug().Msg("unread count reset")
		m.broker.Publish(Event{Type: EventUnread, At: m.clk.Now(), Unread: 0})
	}
}

func (m *Manager) onFrame(msg frameMsg) {
	if msg.gen != m.gen || m.status != StatusConnected {
		return
	}
	m.dispatch(msg.raw)
}

// teardown is the Close path. Timers are cancelled before the loop exits,
// so once Close returns nothing can fire.
func (m *Manager) teardown(reason string) {
	m.st.cancelAll()
	m.discardConn(true, reason)
	m.setStatus(StatusDisconnected, reason)
	m.broker.Close()
	m.log.Debug().Msg("live supervisor stopped")
}
