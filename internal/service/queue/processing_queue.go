package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
	"github.com/google/uuid"
)

// Processor performs one queued mutation. ctx carries the operation timeout.
type Processor func(ctx context.Context, task queue.Task) (*attendance.Outcome, error)

// StatusMirror is a best-effort cross-process copy of task statuses.
// Load returns queue.ErrRequestNotFound when the request is unknown to the mirror.
type StatusMirror interface {
	Save(ctx context.Context, status queue.TaskStatus) error
	Load(ctx context.Context, requestID string) (queue.TaskStatus, error)
	Delete(ctx context.Context, requestID string) error
}

type Config struct {
	Capacity         int
	HardTimeout      time.Duration
	OperationTimeout time.Duration
	Retention        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:         100,
		HardTimeout:      30 * time.Second,
		OperationTimeout: 20 * time.Second,
		Retention:        time.Hour,
	}
}

type entry struct {
	task   queue.Task
	done   chan struct{}
	result queue.Result
}

// Ticket is handed back by Enqueue and resolves once the task settles.
type Ticket struct {
	RequestID  string
	EnqueuedAt time.Time
	entry      *entry
}

// Wait blocks until the task is completed or failed, or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (queue.Result, error) {
	select {
	case <-t.entry.done:
		return t.entry.result, nil
	case <-ctx.Done():
		return queue.Result{}, ctx.Err()
	}
}

// Done is closed when the task settles.
func (t *Ticket) Done() <-chan struct{} {
	return t.entry.done
}

// ProcessingQueue runs every attendance mutation on a single worker in FIFO order,
// which keeps "at most one open record per employee" true without distributed locks.
type ProcessingQueue struct {
	cfg     Config
	process Processor
	mirror  StatusMirror
	clock   clock.Clock
	logger  *slog.Logger

	tasks chan *entry
	size  atomic.Int64

	mu       sync.RWMutex
	statuses map[string]queue.TaskStatus
	pending  map[string]*entry
	closed   bool

	stop    chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc
}

func NewProcessingQueue(cfg Config, process Processor, mirror StatusMirror, clk clock.Clock, logger *slog.Logger) *ProcessingQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingQueue{
		cfg:      cfg,
		process:  process,
		mirror:   mirror,
		clock:    clk,
		logger:   logger,
		tasks:    make(chan *entry, cfg.Capacity),
		statuses: make(map[string]queue.TaskStatus),
		pending:  make(map[string]*entry),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the worker. It returns immediately.
func (q *ProcessingQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.logger.Info("Processing queue started", "capacity", q.cfg.Capacity, "hard_timeout", q.cfg.HardTimeout)
	go q.worker(ctx)
}

// Shutdown stops accepting tasks, lets the running task settle and fails whatever is
// still waiting in the buffer.
func (q *ProcessingQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)

	var err error
	if q.cancel != nil {
		select {
		case <-q.stopped:
		case <-ctx.Done():
			err = ctx.Err()
		}
		q.cancel()
	}

	for {
		select {
		case e := <-q.tasks:
			q.settle(context.Background(), e, queue.StatusFailed, nil, queue.ErrQueueClosed)
		default:
			q.logger.Info("Processing queue stopped")
			return err
		}
	}
}

// Size returns the number of tasks waiting or running.
func (q *ProcessingQueue) Size() int {
	return int(q.size.Load())
}

// Enqueue records the task as pending and hands it to the worker. A missing request id
// is assigned.
func (q *ProcessingQueue) Enqueue(ctx context.Context, task queue.Task) (*Ticket, error) {
	if task.RequestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate request id: %w", err)
		}
		task.RequestID = id.String()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = q.clock.Now()
	}

	e := &entry{task: task, done: make(chan struct{})}
	status := queue.TaskStatus{
		RequestID:  task.RequestID,
		EmployeeID: task.EmployeeID,
		Action:     task.Intent.Action,
		Status:     queue.StatusPending,
		Timestamp:  task.EnqueuedAt,
		EnqueuedAt: task.EnqueuedAt,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, queue.ErrQueueClosed
	}
	if _, exists := q.statuses[task.RequestID]; exists {
		q.mu.Unlock()
		return nil, fmt.Errorf("request %s already enqueued", task.RequestID)
	}
	select {
	case q.tasks <- e:
	default:
		q.mu.Unlock()
		return nil, queue.ErrQueueFull
	}
	q.size.Add(1)
	q.statuses[task.RequestID] = status
	q.pending[task.RequestID] = e
	q.mu.Unlock()

	q.mirrorSave(ctx, status)

	q.logger.Debug("Task enqueued",
		"request_id", task.RequestID,
		"employee_id", task.EmployeeID,
		"action", task.Intent.Action,
		"queue_size", q.Size(),
	)
	return &Ticket{RequestID: task.RequestID, EnqueuedAt: task.EnqueuedAt, entry: e}, nil
}

// Await returns the ticket of a request still known to this process.
func (q *ProcessingQueue) Await(requestID string) (*Ticket, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.pending[requestID]
	if !ok {
		return nil, false
	}
	return &Ticket{RequestID: requestID, EnqueuedAt: e.task.EnqueuedAt, entry: e}, true
}

// GetRequestStatus looks in memory first, then in the mirror. Requests known to
// neither are reported as unknown.
func (q *ProcessingQueue) GetRequestStatus(ctx context.Context, requestID string) queue.TaskStatus {
	q.mu.RLock()
	status, ok := q.statuses[requestID]
	q.mu.RUnlock()
	if ok {
		return status
	}

	if q.mirror != nil {
		mirrored, err := q.mirror.Load(ctx, requestID)
		switch {
		case err == nil:
			return mirrored
		case !errors.Is(err, queue.ErrRequestNotFound):
			q.logger.Warn("Failed to read mirrored request status", "request_id", requestID, "error", err)
		}
	}

	return queue.TaskStatus{
		RequestID: requestID,
		Status:    queue.StatusUnknown,
		Timestamp: q.clock.Now(),
	}
}

// IsStalled reports whether a processing task has been running longer than threshold.
func IsStalled(status queue.TaskStatus, now time.Time, threshold time.Duration) bool {
	if status.Status != queue.StatusProcessing || status.StartedAt == nil {
		return false
	}
	return now.Sub(*status.StartedAt) > threshold
}

// RepairCompleted marks a stuck processing task completed after the caller confirmed
// the mutation landed. It is the only way a status moves without the worker.
func (q *ProcessingQueue) RepairCompleted(ctx context.Context, requestID string, data *attendance.Outcome) (queue.TaskStatus, bool) {
	now := q.clock.Now()

	q.mu.Lock()
	status, inMemory := q.statuses[requestID]
	if inMemory {
		if !queue.CanTransition(status.Status, queue.StatusCompleted) {
			q.mu.Unlock()
			return status, false
		}
		status = repaired(status, data, now)
		q.statuses[requestID] = status
	}
	q.mu.Unlock()

	if !inMemory {
		if q.mirror == nil {
			return q.GetRequestStatus(ctx, requestID), false
		}
		mirrored, err := q.mirror.Load(ctx, requestID)
		if err != nil || !queue.CanTransition(mirrored.Status, queue.StatusCompleted) {
			return q.GetRequestStatus(ctx, requestID), false
		}
		status = repaired(mirrored, data, now)
	}

	q.mirrorSave(ctx, status)
	q.logger.Warn("Stalled request repaired as completed",
		"request_id", requestID,
		"employee_id", status.EmployeeID,
	)
	return status, true
}

func repaired(status queue.TaskStatus, data *attendance.Outcome, now time.Time) queue.TaskStatus {
	status.Status = queue.StatusCompleted
	status.Completed = true
	status.Data = data
	status.Error = ""
	status.Timestamp = now
	status.Repaired = true
	return status
}

// Sweep drops settled statuses older than the retention window from memory and,
// best effort, from the mirror. It returns how many were removed.
func (q *ProcessingQueue) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-q.cfg.Retention)

	var expired []string
	q.mu.Lock()
	for id, status := range q.statuses {
		if status.Status.IsTerminal() && status.Timestamp.Before(cutoff) {
			expired = append(expired, id)
			delete(q.statuses, id)
		}
	}
	q.mu.Unlock()

	if q.mirror != nil {
		for _, id := range expired {
			if err := q.mirror.Delete(ctx, id); err != nil {
				q.logger.Warn("Failed to delete mirrored request status", "request_id", id, "error", err)
			}
		}
	}
	return len(expired)
}

func (q *ProcessingQueue) worker(ctx context.Context) {
	defer close(q.stopped)
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case e := <-q.tasks:
			q.run(ctx, e)
		}
	}
}

type processResult struct {
	data *attendance.Outcome
	err  error
}

func (q *ProcessingQueue) run(ctx context.Context, e *entry) {
	task := e.task
	if !q.transition(ctx, task.RequestID, queue.StatusProcessing, func(s *queue.TaskStatus) {
		started := q.clock.Now()
		s.StartedAt = &started
	}) {
		q.settle(ctx, e, queue.StatusFailed, nil, fmt.Errorf("request %s is no longer pending", task.RequestID))
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, q.cfg.OperationTimeout)
	defer cancel()

	results := make(chan processResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- processResult{err: fmt.Errorf("processor panic: %v", r)}
			}
		}()
		data, err := q.process(opCtx, task)
		results <- processResult{data: data, err: err}
	}()

	hard := time.NewTimer(q.cfg.HardTimeout)
	defer hard.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			err := res.err
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: operation timeout after %s: %v", queue.ErrQueueTimeout, q.cfg.OperationTimeout, res.err)
			}
			q.settle(ctx, e, queue.StatusFailed, nil, err)
			return
		}
		q.settle(ctx, e, queue.StatusCompleted, res.data, nil)
	case <-hard.C:
		q.settle(ctx, e, queue.StatusFailed, nil,
			fmt.Errorf("%w: hard timeout after %s", queue.ErrQueueTimeout, q.cfg.HardTimeout))
	}
}

// settle records the final status, releases capacity and wakes waiters.
func (q *ProcessingQueue) settle(ctx context.Context, e *entry, to queue.Status, data *attendance.Outcome, err error) {
	task := e.task
	q.transition(ctx, task.RequestID, to, func(s *queue.TaskStatus) {
		s.Completed = to == queue.StatusCompleted
		s.Data = data
		if err != nil {
			s.Error = err.Error()
		}
	})

	q.mu.Lock()
	delete(q.pending, task.RequestID)
	q.mu.Unlock()
	q.size.Add(-1)

	e.result = queue.Result{RequestID: task.RequestID, Status: to, Data: data, Err: err}
	close(e.done)

	if err != nil {
		q.logger.Error("Task failed",
			"request_id", task.RequestID,
			"employee_id", task.EmployeeID,
			"action", task.Intent.Action,
			"error", err,
		)
		return
	}
	q.logger.Info("Task completed",
		"request_id", task.RequestID,
		"employee_id", task.EmployeeID,
		"action", task.Intent.Action,
	)
}

// transition applies a status change if it is legal and mirrors it.
func (q *ProcessingQueue) transition(ctx context.Context, requestID string, to queue.Status, mutate func(*queue.TaskStatus)) bool {
	q.mu.Lock()
	status, ok := q.statuses[requestID]
	if !ok || !queue.CanTransition(status.Status, to) {
		q.mu.Unlock()
		q.logger.Warn("Ignoring illegal status transition",
			"request_id", requestID,
			"from", status.Status,
			"to", to,
		)
		return false
	}
	status.Status = to
	status.Timestamp = q.clock.Now()
	if mutate != nil {
		mutate(&status)
	}
	q.statuses[requestID] = status
	q.mu.Unlock()

	q.mirrorSave(ctx, status)
	return true
}

func (q *ProcessingQueue) mirrorSave(ctx context.Context, status queue.TaskStatus) {
	if q.mirror == nil {
		return
	}
	if err := q.mirror.Save(context.WithoutCancel(ctx), status); err != nil {
		q.logger.Warn("Failed to mirror request status",
			"request_id", status.RequestID,
			"status", status.Status,
			"error", err,
		)
	}
}
