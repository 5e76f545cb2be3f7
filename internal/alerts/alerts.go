// Package alerts raises user-facing desktop notifications for delivered
// live-channel messages. Raising is asynchronous: the supervisor must never
// block on a desktop environment, and a broken one (headless box, dead
// dbus) trips a breaker instead of erroring on every notification.
package alerts

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Notifier shows one alert to the user.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop sends native desktop notifications.
type Desktop struct {
	icon string
}

// NewDesktop returns a Desktop notifier. icon may be empty.
func NewDesktop(icon string) *Desktop {
	return &Desktop{icon: icon}
}

func (d *Desktop) Notify(title, message string) error {
	return beeep.Notify(title, message, d.icon)
}

// Discard drops every alert. Used when alerts are disabled.
type Discard struct{}

func (Discard) Notify(string, string) error { return nil }

const queueSize = 32

type alert struct {
	title   string
	message string
}

// Async wraps a Notifier with a bounded queue and a circuit breaker. Raise
// never blocks; when the queue is full or the breaker is open, alerts are
// dropped with a log line.
type Async struct {
	notifier  Notifier
	breaker   *gobreaker.CircuitBreaker
	queue     chan alert
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewAsync starts the delivery worker. Close releases it.
func NewAsync(n Notifier, log zerolog.Logger) *Async {
	a := &Async{
		notifier: n,
		queue:    make(chan alert, queueSize),
		done:     make(chan struct{}),
		log:      log,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "desktop-alerts",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("alert breaker state change")
		},
	})
	go a.worker()
	return a
}

// Raise enqueues one alert.
func (a *Async) Raise(title, message string) {
	select {
	case a.queue <- alert{title: title, message: message}:
	default:
		a.log.Warn().Str("title", title).Msg("alert queue full, dropping")
	}
}

// Close stops the worker. Queued alerts are abandoned.
func (a *Async) Close() {
	a.closeOnce.Do(func() { close(a.done) })
}

func (a *Async) worker() {
	for {
		select {
		case al := <-a.queue:
			_, err := a.breaker.Execute(func() (any, error) {
				return nil, a.notifier.Notify(al.title, al.message)
			})
			if err != nil {
				a.log.Warn().Err(err).Str("title", al.title).Msg("alert delivery failed")
				continue
			}
			a.log.Debug().Str("title", al.title).Msg("alert delivered")
		case <-a.done:
			return
		}
	}
}
