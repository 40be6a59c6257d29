package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/validator"
)

type CheckInRequest struct {
	EmployeeID string `json:"-"`
	Note       string `json:"note,omitempty"`
}

func (r *CheckInRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "employee_id is required"})
	}
	if !validator.MaxLength(r.Note, 500) {
		errs = append(errs, validator.ValidationError{Field: "note", Message: "note must be at most 500 characters"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type CheckOutRequest struct {
	EmployeeID string `json:"-"`
	Note       string `json:"note,omitempty"`
}

func (r *CheckOutRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "employee_id is required"})
	}
	if !validator.MaxLength(r.Note, 500) {
		errs = append(errs, validator.ValidationError{Field: "note", Message: "note must be at most 500 characters"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// EnqueueResponse is returned as soon as an intent is accepted by the queue.
type EnqueueResponse struct {
	RequestID  string    `json:"request_id"`
	Status     string    `json:"status"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type RequestStatusResponse struct {
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	Completed bool      `json:"completed"`
	Data      *Outcome  `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Repaired  bool      `json:"repaired,omitempty"`
}

// DayPeriodsResponse lists the periods of one day in chronological order.
type DayPeriodsResponse struct {
	Date        string                    `json:"date"`
	IsHoliday   bool                      `json:"is_holiday"`
	HolidayName string                    `json:"holiday_name,omitempty"`
	Periods     []period.PeriodDefinition `json:"periods"`
}
