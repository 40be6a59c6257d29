package queue

import (
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition allows pending -> processing -> completed|failed, each exactly once.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Task is one queued attendance mutation.
type Task struct {
	RequestID  string            `json:"request_id"`
	EmployeeID string            `json:"employee_id"`
	Intent     attendance.Intent `json:"intent"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// TaskStatus is the pollable status of a task.
type TaskStatus struct {
	RequestID  string              `json:"request_id"`
	EmployeeID string              `json:"employee_id"`
	Action     attendance.Action   `json:"action"`
	Status     Status              `json:"status"`
	Completed  bool                `json:"completed"`
	Data       *attendance.Outcome `json:"data,omitempty"`
	Error      string              `json:"error,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	Repaired   bool                `json:"repaired,omitempty"`
}

// Result is delivered to the enqueuer once a task settles.
type Result struct {
	RequestID string
	Status    Status
	Data      *attendance.Outcome
	Err       error
}
