package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeen(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	seen, err := m.Seen(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, seen, "first sight must be unseen")

	seen, err = m.Seen(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, seen, "second sight must be seen")

	seen, err = m.Seen(ctx, "n-2")
	require.NoError(t, err)
	assert.False(t, seen, "different key is independent")
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	_, err := m.Seen(ctx, "n-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		seen, err := m.Seen(ctx, "n-1")
		return err == nil && !seen
	}, time.Second, 10*time.Millisecond, "key never expired")
}

func TestRedisSeen(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRedis(client, "livewire:seen:", time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("livewire:seen:n-1", 1, time.Minute).SetVal(true)
	seen, err := r.Seen(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, seen)

	mock.ExpectSetNX("livewire:seen:n-1", 1, time.Minute).SetVal(false)
	seen, err = r.Seen(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSeenError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	r := NewRedis(client, "", time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("livewire:seen:n-1", 1, time.Minute).SetErr(fmt.Errorf("connection refused"))
	_, err := r.Seen(ctx, "n-1")
	assert.Error(t, err)
}
