package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/cache"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	// FreshTTL is how long a snapshot is served without recomputation.
	FreshTTL time.Duration
	// StaleTTL is how long a snapshot stays in the store at all. Between FreshTTL and
	// StaleTTL it is served while a refresh runs in the background.
	StaleTTL time.Duration
	LockTTL  time.Duration
	LockWait time.Duration
	LockPoll time.Duration
}

func DefaultConfig() Config {
	return Config{
		FreshTTL: 15 * time.Second,
		StaleTTL: 2 * time.Minute,
		LockTTL:  5 * time.Second,
		LockWait: 2 * time.Second,
		LockPoll: 50 * time.Millisecond,
	}
}

// ComputeFunc produces a snapshot from the source of truth.
type ComputeFunc func(ctx context.Context) (attendance.StatusSnapshot, error)

type envelope struct {
	Snapshot   attendance.StatusSnapshot `json:"snapshot"`
	FreshUntil time.Time                 `json:"fresh_until"`
}

// Bridge fronts the shared cache. Status reads are stale-while-revalidate, guarded by
// an in-process single-flight and a cross-process lock so that one caller computes per key.
// Store access goes through a circuit breaker; while it is open the bridge computes directly.
type Bridge struct {
	cfg     Config
	store   cache.Store
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	clock   clock.Clock
	logger  *slog.Logger
}

func NewBridge(cfg Config, store cache.Store, clk clock.Clock, logger *slog.Logger) *Bridge {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockPoll <= 0 {
		cfg.LockPoll = DefaultConfig().LockPoll
	}
	settings := gobreaker.Settings{
		Name:        "status-cache",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, cache.ErrMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Bridge{
		cfg:     cfg,
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
		clock:   clk,
		logger:  logger,
	}
}

func statusKey(employeeID string) string { return "status:" + employeeID }
func lockKey(key string) string          { return "lock:" + key }

// Get returns the employee's snapshot, computing it with compute when the cache has
// nothing usable.
func (b *Bridge) Get(ctx context.Context, employeeID string, compute ComputeFunc) (attendance.StatusSnapshot, error) {
	key := statusKey(employeeID)

	env, err := b.load(ctx, key)
	switch {
	case err == nil && b.clock.Now().Before(env.FreshUntil):
		return env.Snapshot, nil
	case err == nil:
		go b.refresh(context.WithoutCancel(ctx), key, compute)
		return env.Snapshot, nil
	case !errors.Is(err, cache.ErrMiss):
		b.logger.Warn("Status cache unavailable, computing directly", "employee_id", employeeID, "error", err)
		return compute(ctx)
	}

	v, err, _ := b.group.Do(key, func() (any, error) {
		return b.fill(ctx, key, compute)
	})
	if err != nil {
		return attendance.StatusSnapshot{}, err
	}
	return v.(attendance.StatusSnapshot), nil
}

// Invalidate drops the cached snapshot of an employee.
func (b *Bridge) Invalidate(ctx context.Context, employeeID string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.store.Del(ctx, statusKey(employeeID))
	})
	return err
}

func (b *Bridge) refresh(ctx context.Context, key string, compute ComputeFunc) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.LockTTL)
	defer cancel()

	_, err, _ := b.group.Do(key, func() (any, error) {
		return b.fill(ctx, key, compute)
	})
	if err != nil {
		b.logger.Warn("Background status refresh failed", "key", key, "error", err)
	}
}

// fill computes under the shared lock. Callers that lose the lock wait for the holder's
// value and compute on their own once the wait is over.
func (b *Bridge) fill(ctx context.Context, key string, compute ComputeFunc) (attendance.StatusSnapshot, error) {
	lock, acquired, err := b.tryLock(ctx, key)
	if err != nil {
		b.logger.Warn("Status lock unavailable, computing without it", "key", key, "error", err)
		return compute(ctx)
	}

	if !acquired {
		if env, ok := b.waitForHolder(ctx, key); ok {
			return env.Snapshot, nil
		}
		b.logger.Debug("Gave up waiting for status lock holder", "key", key)
		return compute(ctx)
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			b.logger.Warn("Failed to release status lock", "key", key, "error", err)
		}
	}()

	snapshot, err := compute(ctx)
	if err != nil {
		return attendance.StatusSnapshot{}, err
	}
	b.save(ctx, key, snapshot)
	return snapshot, nil
}

func (b *Bridge) waitForHolder(ctx context.Context, key string) (envelope, bool) {
	deadline := time.NewTimer(b.cfg.LockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(b.cfg.LockPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return envelope{}, false
		case <-deadline.C:
			return envelope{}, false
		case <-ticker.C:
			env, err := b.load(ctx, key)
			if err == nil && b.clock.Now().Before(env.FreshUntil) {
				return env, true
			}
		}
	}
}

func (b *Bridge) tryLock(ctx context.Context, key string) (*cache.Lock, bool, error) {
	var (
		lock     *cache.Lock
		acquired bool
	)
	_, err := b.breaker.Execute(func() (any, error) {
		var err error
		lock, acquired, err = cache.TryLock(ctx, b.store, lockKey(key), b.cfg.LockTTL)
		return nil, err
	})
	return lock, acquired, err
}

func (b *Bridge) load(ctx context.Context, key string) (envelope, error) {
	raw, err := b.breaker.Execute(func() (any, error) {
		return b.store.Get(ctx, key)
	})
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(raw.([]byte), &env); err != nil {
		return envelope{}, fmt.Errorf("failed to decode cached status: %w", err)
	}
	return env, nil
}

func (b *Bridge) save(ctx context.Context, key string, snapshot attendance.StatusSnapshot) {
	raw, err := json.Marshal(envelope{Snapshot: snapshot, FreshUntil: b.clock.Now().Add(b.cfg.FreshTTL)})
	if err != nil {
		b.logger.Warn("Failed to encode status snapshot", "key", key, "error", err)
		return
	}
	_, err = b.breaker.Execute(func() (any, error) {
		return nil, b.store.Set(ctx, key, raw, b.cfg.StaleTTL)
	})
	if err != nil {
		b.logger.Warn("Failed to cache status snapshot", "key", key, "error", err)
	}
}
