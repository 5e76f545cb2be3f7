package live

import (
	"context"

	"github.com/latticenet/livewire/internal/wire"
)

// dispatch routes one inbound frame. Malformed frames are logged and
// dropped; they never take the channel down. Unrecognized frame types are
// tolerated so the server can roll out new kinds ahead of clients.
func (m *Manager) dispatch(raw []byte) {
	cl, err := wire.Classify(raw)
	if err != nil {
		m.log.Warn().Err(err).Int("bytes", len(raw)).Msg("malformed frame dropped")
		m.emit("livewire_frames_malformed_total", 1, nil)
		return
	}
	m.emit("livewire_frames_total", 1, map[string]string{"type": cl.Kind.String()})
	switch cl.Kind {
	case wire.KindNotification:
		m.deliver(*cl.Notification)
	case wire.KindPong:
		m.onPong()
	default:
		m.log.Debug().Str("type", cl.Type).Msg("unrecognized frame type ignored")
	}
}

// deliver applies one notification: duplicate suppression first, then the
// unread increment, then fan-out to subscribers and the alerter. A dedup
// store failure fails open so real notifications are never silently eaten.
func (m *Manager) deliver(n wire.Notification) {
	if key := n.DedupKey(); key != "" {
		ctx, cancel := context.WithTimeout(m.lifeCtx, dedupTimeout)
		seen, err := m.dedup.Seen(ctx, key)
		cancel()
		switch {
		case err != nil:
			m.log.Warn().Err(err).Str("key", key).Msg("dedup check failed, delivering anyway")
		case seen:
			m.log.Debug().Str("id", n.ID).Msg("duplicate notification suppressed")
			m.emit("livewire_notifications_deduped_total", 1, nil)
			return
		}
	}

	var unread int
	m.updateSnapshot(func(s *Snapshot) {
		s.Unread++
		unread = s.Unread
	})
	m.emit("livewire_notifications_total", 1, nil)
	m.emit("livewire_unread", float64(unread), nil)
	m.log.Info().
		Str("id", n.ID).
		Str("title", n.Title).
		Int("unread", unread).
		Msg("notification delivered")
	m.broker.Publish(Event{
		Type:         EventNotification,
		At:           m.clk.Now(),
		Notification: &n,
		Unread:       unread,
	})
	if m.alerter != nil {
		m.alerter.Raise(n.Title, n.Message)
	}
}

// onPong records round-trip time against the last heartbeat. Pongs are
// otherwise ignored: liveness does not depend on them.
func (m *Manager) onPong() {
	if m.lastPing.IsZero() {
		m.log.Debug().Msg("unsolicited pong ignored")
		return
	}
	rtt := m.clk.Since(m.lastPing)
	m.emit("livewire_pong_rtt_seconds", rtt.Seconds(), nil)
	m.log.Debug().Dur("rtt", rtt).Msg("pong received")
}
