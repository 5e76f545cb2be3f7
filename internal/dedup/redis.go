package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store shared across processes. SET NX gives the atomic
// check-and-mark in one round trip.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis store writing keys under prefix with the given
// ttl.
func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "livewire:seen:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Seen marks key and reports whether it was already present.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX succeeds only for first sight.
	return !ok, nil
}
