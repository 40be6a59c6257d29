package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32
	s.AddJob("tick", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s.AddJob("disabled", 0, func(context.Context) error {
		t.Error("disabled job must not run")
		return nil
	})

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestScheduler_RunOnceKeepsGoingAfterFailure(t *testing.T) {
	s := NewScheduler(nil)
	var second atomic.Bool
	s.AddJob("fails", time.Hour, func(context.Context) error { return errors.New("boom") })
	s.AddJob("second", time.Hour, func(context.Context) error {
		second.Store(true)
		return nil
	})

	s.RunOnce(context.Background())
	assert.True(t, second.Load())
}

type fakeCompleter struct {
	n   int
	err error
}

func (f fakeCompleter) AutoCompleteOpenRecords(context.Context) (int, error) { return f.n, f.err }

type fakeSweeper struct{ at time.Time }

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time) int {
	f.at = now
	return 2
}

func TestAttendanceJobs(t *testing.T) {
	now := time.Date(2024, time.March, 4, 19, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{}

	jobs := NewAttendanceJobs(fakeCompleter{n: 1, err: queue.ErrQueueFull}, sweeper, time.Minute, time.Minute, clock.NewManual(now), nil)
	assert.NoError(t, jobs.AutoCompleteOpenRecords(context.Background()), "a full queue defers to the next run")

	jobs = NewAttendanceJobs(fakeCompleter{err: errors.New("db down")}, sweeper, time.Minute, time.Minute, clock.NewManual(now), nil)
	assert.Error(t, jobs.AutoCompleteOpenRecords(context.Background()))

	require.NoError(t, jobs.SweepRequestStatuses(context.Background()))
	assert.True(t, sweeper.at.Equal(now))
}
