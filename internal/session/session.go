// Package session holds the viewer identity the live channel connects as.
//
// The store is an explicit dependency handed to whatever needs identity,
// never a package global: the supervisor takes it at construction, tests
// swap in their own, and identity changes fan out to watchers as values.
package session

import (
	"context"
	"sync"
)

// Identity is the authenticated viewer of the current session. The zero
// value is an anonymous, signed-out identity.
type Identity struct {
	UserID        string
	Authenticated bool
}

// Valid reports whether this identity can open a live channel.
func (id Identity) Valid() bool {
	return id.Authenticated && id.UserID != ""
}

// Store is a concurrency-safe holder for the current Identity with
// change notification. Watchers receive the latest value only; if a
// watcher lags, intermediate identities are conflated away.
type Store struct {
	mu      sync.RWMutex
	current Identity
	subs    map[chan Identity]struct{}
}

// NewStore returns a Store seeded with initial.
func NewStore(initial Identity) *Store {
	return &Store{
		current: initial,
		subs:    make(map[chan Identity]struct{}),
	}
}

// Current returns the identity as of now.
func (s *Store) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the identity. Watchers are only notified when the value
// actually changed.
func (s *Store) Set(id Identity) {
	s.mu.Lock()
	if id == s.current {
		s.mu.Unlock()
		return
	}
	s.current = id
	subs := make([]chan Identity, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		offer(ch, id)
	}
}

// Clear drops to the anonymous identity.
func (s *Store) Clear() {
	s.Set(Identity{})
}

// Watch returns a channel that carries identity changes until ctx is done.
// The channel has capacity one and always holds the most recent change: a
// slow reader sees the newest identity, not a backlog.
func (s *Store) Watch(ctx context.Context) <-chan Identity {
	ch := make(chan Identity, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	return ch
}

// offer delivers latest-wins: if the watcher has not consumed the previous
// value it is replaced rather than queued behind.
func offer(ch chan Identity, id Identity) {
	for {
		select {
		case ch <- id:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
