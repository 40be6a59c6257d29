package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, s.Del(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	require.NoError(t, s.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	time.Sleep(40 * time.Millisecond)
	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)

	ttl, err := s.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestTryLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	first, ok, err := TryLock(ctx, s, "lock:a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = TryLock(ctx, s, "lock:a", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "lease is held")

	require.NoError(t, first.Unlock(ctx))
	second, ok, err := TryLock(ctx, s, "lock:a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale holder cannot release someone else's lease.
	require.NoError(t, first.Unlock(ctx))
	_, ok, err = TryLock(ctx, s, "lock:a", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Unlock(ctx))
}

func TestTryLock_ExpiredLeaseCanBeRetaken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	_, ok, err := TryLock(ctx, s, "lock:b", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, err = TryLock(ctx, s, "lock:b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
