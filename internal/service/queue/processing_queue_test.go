package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	mu       sync.Mutex
	statuses map[string]queue.TaskStatus
	saves    int
	failSave bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{statuses: make(map[string]queue.TaskStatus)}
}

func (m *fakeMirror) Save(_ context.Context, status queue.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("mirror unavailable")
	}
	m.saves++
	m.statuses[status.RequestID] = status
	return nil
}

func (m *fakeMirror) Load(_ context.Context, requestID string) (queue.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[requestID]
	if !ok {
		return queue.TaskStatus{}, queue.ErrRequestNotFound
	}
	return s, nil
}

func (m *fakeMirror) Delete(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, requestID)
	return nil
}

func (m *fakeMirror) get(requestID string) (queue.TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[requestID]
	return s, ok
}

func testQueueConfig() Config {
	return Config{
		Capacity:         10,
		HardTimeout:      200 * time.Millisecond,
		OperationTimeout: time.Second,
		Retention:        time.Hour,
	}
}

func newTask(employeeID string, action attendance.Action) queue.Task {
	return queue.Task{
		EmployeeID: employeeID,
		Intent:     attendance.Intent{Action: action, EmployeeID: employeeID},
	}
}

func startQueue(t *testing.T, cfg Config, process Processor, mirror StatusMirror) *ProcessingQueue {
	t.Helper()
	q := NewProcessingQueue(cfg, process, mirror, clock.Real(), nil)
	q.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q
}

func waitResult(t *testing.T, ticket *Ticket) queue.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := ticket.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestEnqueue_CompletesAndAssignsRequestID(t *testing.T) {
	mirror := newFakeMirror()
	q := startQueue(t, testQueueConfig(), func(_ context.Context, task queue.Task) (*attendance.Outcome, error) {
		return &attendance.Outcome{Action: task.Intent.Action, Message: "ok"}, nil
	}, mirror)

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)
	require.NotEmpty(t, ticket.RequestID)

	res := waitResult(t, ticket)
	assert.Equal(t, queue.StatusCompleted, res.Status)
	require.NotNil(t, res.Data)
	assert.Equal(t, "ok", res.Data.Message)

	status := q.GetRequestStatus(context.Background(), ticket.RequestID)
	assert.Equal(t, queue.StatusCompleted, status.Status)
	assert.True(t, status.Completed)
	assert.NotNil(t, status.StartedAt)
	assert.Equal(t, 0, q.Size())

	mirrored, ok := mirror.get(ticket.RequestID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, mirrored.Status)
}

func TestEnqueue_KeepsCallerRequestID(t *testing.T) {
	q := startQueue(t, testQueueConfig(), func(context.Context, queue.Task) (*attendance.Outcome, error) {
		return &attendance.Outcome{}, nil
	}, nil)

	task := newTask("emp-1", attendance.ActionCheckIn)
	task.RequestID = "req-fixed"
	ticket, err := q.Enqueue(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "req-fixed", ticket.RequestID)
	waitResult(t, ticket)

	_, err = q.Enqueue(context.Background(), task)
	assert.Error(t, err, "request ids are unique while retained")
}

func TestEnqueue_FIFO(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	q := startQueue(t, testQueueConfig(), func(_ context.Context, task queue.Task) (*attendance.Outcome, error) {
		mu.Lock()
		events = append(events, "start:"+task.RequestID)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		events = append(events, "end:"+task.RequestID)
		mu.Unlock()
		return &attendance.Outcome{}, nil
	}, nil)

	a := newTask("emp-1", attendance.ActionCheckIn)
	a.RequestID = "A"
	b := newTask("emp-1", attendance.ActionCheckOut)
	b.RequestID = "B"

	ta, err := q.Enqueue(context.Background(), a)
	require.NoError(t, err)
	tb, err := q.Enqueue(context.Background(), b)
	require.NoError(t, err)
	waitResult(t, ta)
	waitResult(t, tb)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start:A", "end:A", "start:B", "end:B"}, events)
}

func TestEnqueue_FailureIsRecorded(t *testing.T) {
	q := startQueue(t, testQueueConfig(), func(context.Context, queue.Task) (*attendance.Outcome, error) {
		return nil, attendance.ErrActionNotAllowed
	}, nil)

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)

	res := waitResult(t, ticket)
	assert.Equal(t, queue.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, attendance.ErrActionNotAllowed)

	status := q.GetRequestStatus(context.Background(), ticket.RequestID)
	assert.Equal(t, queue.StatusFailed, status.Status)
	assert.False(t, status.Completed)
	assert.Equal(t, attendance.ErrActionNotAllowed.Error(), status.Error)
}

func TestEnqueue_HardTimeoutReleasesCapacity(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	q := startQueue(t, testQueueConfig(), func(context.Context, queue.Task) (*attendance.Outcome, error) {
		<-block
		return &attendance.Outcome{}, nil
	}, nil)

	before := q.Size()
	start := time.Now()
	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)

	res := waitResult(t, ticket)
	elapsed := time.Since(start)

	assert.Equal(t, queue.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, queue.ErrQueueTimeout)
	assert.Contains(t, q.GetRequestStatus(context.Background(), ticket.RequestID).Error, "timeout")
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, before, q.Size())

	// The worker is free again.
	next, err := q.Enqueue(context.Background(), newTask("emp-2", attendance.ActionCheckIn))
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, waitResult(t, next).Status)
}

func TestEnqueue_OperationTimeout(t *testing.T) {
	cfg := testQueueConfig()
	cfg.OperationTimeout = 20 * time.Millisecond

	q := startQueue(t, cfg, func(ctx context.Context, _ queue.Task) (*attendance.Outcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)

	res := waitResult(t, ticket)
	assert.Equal(t, queue.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, queue.ErrQueueTimeout)
	assert.Contains(t, res.Err.Error(), "operation timeout")
}

func TestEnqueue_Full(t *testing.T) {
	cfg := testQueueConfig()
	cfg.Capacity = 2
	// Not started: nothing drains the buffer.
	q := NewProcessingQueue(cfg, nil, nil, clock.Real(), nil)

	_, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), newTask("emp-2", attendance.ActionCheckIn))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), newTask("emp-3", attendance.ActionCheckIn))
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Equal(t, 2, q.Size())
}

func TestShutdown_FailsBufferedTasks(t *testing.T) {
	q := NewProcessingQueue(testQueueConfig(), nil, nil, clock.Real(), nil)

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)

	require.NoError(t, q.Shutdown(context.Background()))
	res := waitResult(t, ticket)
	assert.Equal(t, queue.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, queue.ErrQueueClosed)
	assert.Equal(t, 0, q.Size())

	_, err = q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}

func TestGetRequestStatus_Fallbacks(t *testing.T) {
	mirror := newFakeMirror()
	q := NewProcessingQueue(testQueueConfig(), nil, mirror, clock.Real(), nil)

	unknown := q.GetRequestStatus(context.Background(), "nope")
	assert.Equal(t, queue.StatusUnknown, unknown.Status)
	assert.Equal(t, "nope", unknown.RequestID)

	// Written by another instance.
	require.NoError(t, mirror.Save(context.Background(), queue.TaskStatus{
		RequestID: "elsewhere",
		Status:    queue.StatusCompleted,
		Completed: true,
	}))
	got := q.GetRequestStatus(context.Background(), "elsewhere")
	assert.Equal(t, queue.StatusCompleted, got.Status)
}

func TestMirrorFailureDoesNotBlockProcessing(t *testing.T) {
	mirror := newFakeMirror()
	mirror.failSave = true
	q := startQueue(t, testQueueConfig(), func(context.Context, queue.Task) (*attendance.Outcome, error) {
		return &attendance.Outcome{}, nil
	}, mirror)

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, waitResult(t, ticket).Status)
	assert.Equal(t, queue.StatusCompleted, q.GetRequestStatus(context.Background(), ticket.RequestID).Status)
}

func TestSweep(t *testing.T) {
	mirror := newFakeMirror()
	clk := clock.NewManual(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))
	q := NewProcessingQueue(testQueueConfig(), func(context.Context, queue.Task) (*attendance.Outcome, error) {
		return &attendance.Outcome{}, nil
	}, mirror, clk, nil)
	q.Start(context.Background())
	defer q.Shutdown(context.Background())

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)
	waitResult(t, ticket)

	assert.Equal(t, 0, q.Sweep(context.Background(), clk.Now().Add(30*time.Minute)))
	assert.Equal(t, 1, q.Sweep(context.Background(), clk.Now().Add(61*time.Minute)))

	_, ok := mirror.get(ticket.RequestID)
	assert.False(t, ok)
	assert.Equal(t, queue.StatusUnknown, q.GetRequestStatus(context.Background(), ticket.RequestID).Status)
}

func TestIsStalledAndRepair(t *testing.T) {
	mirror := newFakeMirror()
	clk := clock.NewManual(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))
	release := make(chan struct{})
	cfg := testQueueConfig()
	cfg.HardTimeout = 5 * time.Second
	q := NewProcessingQueue(cfg, func(context.Context, queue.Task) (*attendance.Outcome, error) {
		<-release
		return &attendance.Outcome{}, nil
	}, mirror, clk, nil)
	q.Start(context.Background())
	defer q.Shutdown(context.Background())
	defer close(release)

	ticket, err := q.Enqueue(context.Background(), newTask("emp-1", attendance.ActionCheckIn))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.GetRequestStatus(context.Background(), ticket.RequestID).Status == queue.StatusProcessing
	}, time.Second, 5*time.Millisecond)

	status := q.GetRequestStatus(context.Background(), ticket.RequestID)
	assert.False(t, IsStalled(status, clk.Now().Add(10*time.Second), 15*time.Second))
	assert.True(t, IsStalled(status, clk.Now().Add(16*time.Second), 15*time.Second))

	repairedStatus, ok := q.RepairCompleted(context.Background(), ticket.RequestID, &attendance.Outcome{Message: "found"})
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, repairedStatus.Status)
	assert.True(t, repairedStatus.Repaired)

	// Settled statuses are never repaired again.
	_, ok = q.RepairCompleted(context.Background(), ticket.RequestID, nil)
	assert.False(t, ok)

	mirrored, found := mirror.get(ticket.RequestID)
	require.True(t, found)
	assert.True(t, mirrored.Repaired)
}

func TestRepairCompleted_FromMirror(t *testing.T) {
	mirror := newFakeMirror()
	started := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, mirror.Save(context.Background(), queue.TaskStatus{
		RequestID: "orphan",
		Status:    queue.StatusProcessing,
		StartedAt: &started,
	}))
	q := NewProcessingQueue(testQueueConfig(), nil, mirror, clock.NewManual(started.Add(time.Minute)), nil)

	status, ok := q.RepairCompleted(context.Background(), "orphan", nil)
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, status.Status)

	mirrored, _ := mirror.get("orphan")
	assert.Equal(t, queue.StatusCompleted, mirrored.Status)
}
