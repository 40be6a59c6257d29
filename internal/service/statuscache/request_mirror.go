package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/cache"
)

func requestKey(requestID string) string { return "request:" + requestID }

// RequestMirror keeps a copy of every queue status in the shared cache so that polling
// works from any instance and across restarts. It never is the authority while the
// owning process still holds the status in memory.
type RequestMirror struct {
	bridge    *Bridge
	retention time.Duration
}

func (b *Bridge) RequestMirror(retention time.Duration) *RequestMirror {
	return &RequestMirror{bridge: b, retention: retention}
}

func (m *RequestMirror) Save(ctx context.Context, status queue.TaskStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode request status: %w", err)
	}
	_, err = m.bridge.breaker.Execute(func() (any, error) {
		return nil, m.bridge.store.Set(ctx, requestKey(status.RequestID), raw, m.retention)
	})
	return err
}

func (m *RequestMirror) Load(ctx context.Context, requestID string) (queue.TaskStatus, error) {
	raw, err := m.bridge.breaker.Execute(func() (any, error) {
		return m.bridge.store.Get(ctx, requestKey(requestID))
	})
	if errors.Is(err, cache.ErrMiss) {
		return queue.TaskStatus{}, queue.ErrRequestNotFound
	}
	if err != nil {
		return queue.TaskStatus{}, err
	}
	var status queue.TaskStatus
	if err := json.Unmarshal(raw.([]byte), &status); err != nil {
		return queue.TaskStatus{}, fmt.Errorf("failed to decode request status: %w", err)
	}
	return status, nil
}

func (m *RequestMirror) Delete(ctx context.Context, requestID string) error {
	_, err := m.bridge.breaker.Execute(func() (any, error) {
		return nil, m.bridge.store.Del(ctx, requestKey(requestID))
	})
	return err
}
