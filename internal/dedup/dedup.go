// Package dedup suppresses duplicate notification deliveries. Servers
// re-send frames across reconnects, so every notification id is checked
// against a seen-store before it counts toward unread or raises an alert.
//
// Two stores exist: an in-process TTL cache for single-instance use, and a
// Redis store for the monitor daemon where several instances share one
// identity.
package dedup

import (
	"context"
	"time"
)

// DefaultTTL is how long a notification id stays remembered. Re-sends
// arrive within seconds of a reconnect; minutes of memory is plenty.
const DefaultTTL = 10 * time.Minute

// Store answers "has this key been seen before?" and marks it seen in the
// same step.
type Store interface {
	// Seen reports whether key was already present and remembers it
	// either way. Errors mean the store could not answer; callers treat
	// that as unseen and deliver.
	Seen(ctx context.Context, key string) (bool, error)
}
