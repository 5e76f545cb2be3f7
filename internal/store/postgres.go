package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/latticenet/livewire/internal/wire"
)

const queryTimeout = 5 * time.Second

const schemaQuery = `
CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	actor_id    TEXT NOT NULL DEFAULT '',
	sent_at     TIMESTAMPTZ,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_received_at
	ON notifications (received_at DESC);
`

const insertQuery = `
INSERT INTO notifications (id, title, message, category, actor_id, sent_at, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

const recentQuery = `
SELECT id, title, message, category, actor_id, sent_at, received_at
FROM notifications
ORDER BY received_at DESC
LIMIT $1`

type postgresArchiver struct {
	db *sqlx.DB
}

// NewPostgres opens a pool against dsn. The connection is verified lazily;
// call EnsureSchema at startup to fail fast on a bad DSN.
func NewPostgres(dsn string) (Archiver, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &postgresArchiver{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle. Tests use this with sqlmock.
func NewPostgresFromDB(db *sqlx.DB) Archiver {
	return &postgresArchiver{db: db}
}

func (p *postgresArchiver) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, schemaQuery); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (p *postgresArchiver) Archive(ctx context.Context, n wire.Notification, receivedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	id := n.ID
	if id == "" {
		// Rows need a key even when the server sent none; a random one
		// keeps the frame without inventing collisions.
		id = uuid.NewString()
	}
	var sentAt *time.Time
	if n.Timestamp != 0 {
		t := time.UnixMilli(n.Timestamp).UTC()
		sentAt = &t
	}
	_, err := p.db.ExecContext(ctx, insertQuery,
		id, n.Title, n.Message, n.Category, n.ActorID, sentAt, receivedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: archive %s: %w", id, err)
	}
	return nil
}

func (p *postgresArchiver) Recent(ctx context.Context, limit int) ([]Archived, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]Archived, 0, limit)
	if err := p.db.SelectContext(ctx, &rows, recentQuery, limit); err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	return rows, nil
}

func (p *postgresArchiver) Close() error {
	return p.db.Close()
}
