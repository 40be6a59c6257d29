package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Store is a shared key/value cache with TTLs and the two primitives needed for a
// distributed lock: set-if-absent and compare-and-delete.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// TTL returns the remaining lifetime of key. Zero means the key never expires.
	TTL(ctx context.Context, key string) (time.Duration, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}
