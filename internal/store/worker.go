package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/latticenet/livewire/internal/wire"
)

// Worker decouples archival from delivery: the supervisor's event stream is
// pushed into a bounded queue and written out by one goroutine. A failing
// database trips a breaker so a Postgres outage costs a few dropped rows,
// never a wedged channel.
type Worker struct {
	arch    Archiver
	breaker *gobreaker.CircuitBreaker
	queue   chan queued
	log     zerolog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type queued struct {
	n          wire.Notification
	receivedAt time.Time
}

// NewWorker starts the archival goroutine. queueSize bounds how many
// notifications may wait on a slow database before drops begin.
func NewWorker(arch Archiver, queueSize int, log zerolog.Logger) *Worker {
	if queueSize < 1 {
		queueSize = 128
	}
	w := &Worker{
		arch:  arch,
		queue: make(chan queued, queueSize),
		log:   log,
		done:  make(chan struct{}),
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-archive",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("archive breaker state change")
		},
	})
	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue hands one notification to the worker. Never blocks; on a full
// queue the notification is dropped with a warning.
func (w *Worker) Enqueue(n wire.Notification, receivedAt time.Time) {
	select {
	case w.queue <- queued{n: n, receivedAt: receivedAt}:
	default:
		w.log.Warn().Str("id", n.ID).Msg("archive queue full, dropping")
	}
}

// Close drains nothing: pending rows are abandoned, matching the
// best-effort contract. Blocks until the goroutine exits.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case q := <-w.queue:
			_, err := w.breaker.Execute(func() (any, error) {
				return nil, w.arch.Archive(context.Background(), q.n, q.receivedAt)
			})
			if err != nil {
				w.log.Warn().Err(err).Str("id", q.n.ID).Msg("archive failed")
				continue
			}
			w.log.Debug().Str("id", q.n.ID).Msg("notification archived")
		case <-w.done:
			return
		}
	}
}
