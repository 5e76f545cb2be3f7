package dedup

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store with TTL expiry.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory returns a Memory store that forgets keys after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{cache: gocache.New(ttl, 2*ttl)}
}

// Seen marks key and reports whether it was already present.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	// Add fails only when the key already exists, which is exactly the
	// answer we need, and it is atomic under the cache lock.
	err := m.cache.Add(key, struct{}{}, gocache.DefaultExpiration)
	return err != nil, nil
}
