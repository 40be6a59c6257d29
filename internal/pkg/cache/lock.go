package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lock is a short-lived exclusive lease on a key. Only the holder's token can release it.
type Lock struct {
	store Store
	key   string
	token []byte
}

// TryLock attempts to take key for ttl. It returns acquired=false without error when
// another holder owns the lease.
func TryLock(ctx context.Context, s Store, key string, ttl time.Duration) (*Lock, bool, error) {
	token := []byte(uuid.NewString())
	ok, err := s.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{store: s, key: key, token: token}, true, nil
}

// Unlock releases the lease if it is still ours. A lease that expired and was taken
// over by someone else is left alone.
func (l *Lock) Unlock(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if _, err := l.store.DelIfEqual(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
