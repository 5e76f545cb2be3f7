package live

import (
	"context"
	"sync"
	"time"

	"github.com/latticenet/livewire/internal/wire"
)

// EventType discriminates events published by the Manager.
type EventType string

const (
	// EventStatus marks a status transition.
	EventStatus EventType = "status"
	// EventNotification marks a delivered (non-duplicate) notification.
	EventNotification EventType = "notification"
	// EventUnread marks an unread-count change without a new
	// notification, i.e. a reset.
	EventUnread EventType = "unread"
)

// Event is one observable change in the live channel. Fields beyond Type
// are populated per event type.
type Event struct {
	Type EventType
	At   time.Time

	// EventStatus
	Status   Status
	Previous Status
	Reason   string

	// EventNotification
	Notification *wire.Notification

	// EventNotification and EventUnread
	Unread int
}

// Broker fans Manager events out to any number of subscribers. Delivery is
// best effort: a subscriber that stops draining its channel loses events
// rather than stalling the supervisor loop.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
	closed bool
}

// NewBroker returns a Broker whose subscriber channels buffer up to buffer
// events.
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber until ctx is done or the broker
// closes. The returned channel is closed on unsubscribe.
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers ev to every subscriber that has room.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close unsubscribes everyone. Subsequent Publish calls are dropped and
// subsequent Subscribe calls return an already-closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
