package attendance

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

type CheckInCommand struct {
	EmployeeID  string
	Type        period.Type
	Date        time.Time
	Timestamp   time.Time
	OvertimeID  *string
	LateMinutes int
}

type CheckOutCommand struct {
	RecordID      string
	EmployeeID    string
	Type          period.Type
	Timestamp     time.Time
	AutoCompleted bool
	Note          *string
}

// AttendanceRepository is the attendance store. Lookups return (nil, nil) when nothing matches.
type AttendanceRepository interface {
	// GetOpenRecord returns the most recent record with a check-in and no check-out.
	GetOpenRecord(ctx context.Context, employeeID string) (*Record, error)

	// GetLatestRecord returns the most recently touched record, open or closed.
	GetLatestRecord(ctx context.Context, employeeID string) (*Record, error)

	RecordCheckIn(ctx context.Context, cmd CheckInCommand) (Record, error)
	RecordCheckOut(ctx context.Context, cmd CheckOutCommand) (Record, error)

	// ListOpenRecords is used by the auto-completion sweep.
	ListOpenRecords(ctx context.Context, limit int) ([]Record, error)
}

// Transactor runs fn so that every repository call made with the ctx it receives
// shares one transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
