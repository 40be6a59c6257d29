package period

import (
	"context"
	"time"
)

// ScheduleRepository resolves the shift and approved overtime of an employee on a civil date.
type ScheduleRepository interface {
	// GetShiftAndOvertime returns ErrScheduleNotFound when no shift is assigned for the date.
	GetShiftAndOvertime(ctx context.Context, employeeID string, date time.Time) (DaySchedule, error)
}
