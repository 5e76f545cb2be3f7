package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/livewire/internal/wire"
)

type archiveStub struct {
	mu    sync.Mutex
	fail  bool
	ids   []string
	block chan struct{}
}

func (s *archiveStub) EnsureSchema(context.Context) error { return nil }

func (s *archiveStub) Archive(_ context.Context, n wire.Notification, _ time.Time) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, n.ID)
	if s.fail {
		return errors.New("connection refused")
	}
	return nil
}

func (s *archiveStub) Recent(context.Context, int) ([]Archived, error) { return nil, nil }

func (s *archiveStub) Close() error { return nil }

func (s *archiveStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *archiveStub) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func TestWorkerArchivesEnqueued(t *testing.T) {
	stub := &archiveStub{}
	w := NewWorker(stub, 8, zerolog.Nop())
	defer w.Close()

	recv := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.Enqueue(wire.Notification{ID: "n-1"}, recv)
	w.Enqueue(wire.Notification{ID: "n-2"}, recv)

	require.Eventually(t, func() bool { return stub.count() == 2 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"n-1", "n-2"}, stub.seen())
}

func TestWorkerEnqueueNeverBlocks(t *testing.T) {
	stub := &archiveStub{block: make(chan struct{})}
	w := NewWorker(stub, 1, zerolog.Nop())
	defer w.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			w.Enqueue(wire.Notification{ID: fmt.Sprintf("n-%d", i)}, time.Now())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	close(stub.block)
}

func TestWorkerBreakerOpensOnRepeatedFailure(t *testing.T) {
	stub := &archiveStub{fail: true}
	w := NewWorker(stub, 32, zerolog.Nop())
	defer w.Close()

	for i := 0; i < 10; i++ {
		w.Enqueue(wire.Notification{ID: fmt.Sprintf("n-%d", i)}, time.Now())
	}

	require.Eventually(t, func() bool { return w.breaker.State().String() == "open" },
		2*time.Second, 5*time.Millisecond)
	tripped := stub.count()
	assert.LessOrEqual(t, tripped, 5)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, tripped, stub.count(), "open breaker must not hit the database")
}

func TestWorkerCloseIsIdempotent(t *testing.T) {
	w := NewWorker(&archiveStub{}, 4, zerolog.Nop())
	w.Close()
	w.Close()

	// Late enqueues after Close are dropped, never a panic or a hang.
	w.Enqueue(wire.Notification{ID: "late"}, time.Now())
}
