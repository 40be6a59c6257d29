package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
)

// AutoCompleter enqueues auto-completion for overdue open records.
type AutoCompleter interface {
	AutoCompleteOpenRecords(ctx context.Context) (int, error)
}

// StatusSweeper drops settled request statuses past their retention.
type StatusSweeper interface {
	Sweep(ctx context.Context, now time.Time) int
}

type AttendanceJobs struct {
	completer AutoCompleter
	sweeper   StatusSweeper
	clock     clock.Clock
	logger    *slog.Logger

	autoCompleteInterval time.Duration
	sweepInterval        time.Duration
}

func NewAttendanceJobs(
	completer AutoCompleter,
	sweeper StatusSweeper,
	autoCompleteInterval time.Duration,
	sweepInterval time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
) *AttendanceJobs {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceJobs{
		completer:            completer,
		sweeper:              sweeper,
		clock:                clk,
		logger:               logger,
		autoCompleteInterval: autoCompleteInterval,
		sweepInterval:        sweepInterval,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("auto_complete_open_records", j.autoCompleteInterval, j.AutoCompleteOpenRecords)
	scheduler.AddJob("sweep_request_statuses", j.sweepInterval, j.SweepRequestStatuses)
}

// AutoCompleteOpenRecords closes forgotten check-outs through the processing queue. A
// full queue is not an error; the remaining records are picked up on the next run.
func (j *AttendanceJobs) AutoCompleteOpenRecords(ctx context.Context) error {
	j.logger.Debug("Cron: Starting auto-complete open records job")

	n, err := j.completer.AutoCompleteOpenRecords(ctx)
	if errors.Is(err, queue.ErrQueueFull) {
		j.logger.Warn("Cron: Processing queue full, auto-completion deferred", "enqueued", n)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to auto-complete open records: %w", err)
	}

	if n > 0 {
		j.logger.Info("Cron: Auto-completion enqueued", "count", n)
	}
	return nil
}

func (j *AttendanceJobs) SweepRequestStatuses(ctx context.Context) error {
	removed := j.sweeper.Sweep(ctx, j.clock.Now())
	if removed > 0 {
		j.logger.Info("Cron: Request statuses swept", "removed", removed)
	}
	return nil
}
