package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Store backed by go-cache. It serves single-instance
// deployments and tests.
type MemoryStore struct {
	items *gocache.Cache
	mu    sync.Mutex
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return bytes.Clone(v.([]byte)), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.items.Set(key, bytes.Clone(value), expiration(ttl))
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.items.Delete(k)
	}
	return nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	_, exp, ok := m.items.GetWithExpiration(key)
	if !ok {
		return 0, ErrMiss
	}
	if exp.IsZero() {
		return 0, nil
	}
	return time.Until(exp), nil
}

func (m *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := m.items.Add(key, bytes.Clone(value), expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) DelIfEqual(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.items.Get(key)
	if !ok || !bytes.Equal(v.([]byte), value) {
		return false, nil
	}
	m.items.Delete(key)
	return true, nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
