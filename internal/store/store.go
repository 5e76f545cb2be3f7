// Package store archives delivered notifications so the monitor daemon can
// answer "what did I miss" across restarts. Archival is strictly off the
// delivery path: the live channel never waits on Postgres.
package store

import (
	"context"
	"time"

	"github.com/latticenet/livewire/internal/wire"
)

// Archived is one stored notification row. SentAt is what the server
// stamped on the frame and may be absent; ReceivedAt is always set.
type Archived struct {
	ID         string     `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Message    string     `db:"message" json:"message"`
	Category   string     `db:"category" json:"category,omitempty"`
	ActorID    string     `db:"actor_id" json:"actor_id,omitempty"`
	SentAt     *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ReceivedAt time.Time  `db:"received_at" json:"received_at"`
}

// Archiver persists notifications and serves recent history.
type Archiver interface {
	// EnsureSchema creates the backing table when it does not exist.
	EnsureSchema(ctx context.Context) error
	// Archive stores one notification. Storing the same id twice is a
	// no-op, which makes replays across reconnects harmless.
	Archive(ctx context.Context, n wire.Notification, receivedAt time.Time) error
	// Recent returns the newest rows, most recent first.
	Recent(ctx context.Context, limit int) ([]Archived, error)
	Close() error
}
