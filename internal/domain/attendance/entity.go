package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

// State is the lifecycle state of an attendance record.
type State string

const (
	StatePresent       State = "PRESENT"
	StateCheckedOut    State = "CHECKED_OUT"
	StateAutoCompleted State = "AUTO_COMPLETED"
)

type OvertimeState string

const (
	OvertimeStateNone       OvertimeState = "NONE"
	OvertimeStateInProgress OvertimeState = "IN_PROGRESS"
	OvertimeStateCompleted  OvertimeState = "COMPLETED"
)

// Record is a single check-in/check-out pair of one employee.
// At most one record per employee is open at any time.
type Record struct {
	ID            string        `json:"id"`
	EmployeeID    string        `json:"employee_id"`
	Date          time.Time     `json:"date"`
	Type          period.Type   `json:"type"`
	OvertimeID    *string       `json:"overtime_id,omitempty"`
	CheckInTime   *time.Time    `json:"check_in_time,omitempty"`
	CheckOutTime  *time.Time    `json:"check_out_time,omitempty"`
	State         State         `json:"state"`
	OvertimeState OvertimeState `json:"overtime_state"`
	LateMinutes   *int          `json:"late_minutes,omitempty"`
	WorkMinutes   *int          `json:"work_minutes,omitempty"`
	Note          *string       `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsOpen reports whether the record has a check-in and no check-out yet.
func (r *Record) IsOpen() bool {
	return r != nil && r.CheckInTime != nil && r.CheckOutTime == nil
}

// Action is the kind of mutation requested for an employee.
type Action string

const (
	ActionCheckIn      Action = "CHECK_IN"
	ActionCheckOut     Action = "CHECK_OUT"
	ActionAutoComplete Action = "AUTO_COMPLETE"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCheckIn, ActionCheckOut, ActionAutoComplete:
		return true
	}
	return false
}

// Intent is the payload carried by a queued mutation.
type Intent struct {
	Action      Action    `json:"action"`
	EmployeeID  string    `json:"employee_id"`
	RequestedAt time.Time `json:"requested_at"`
	Note        string    `json:"note,omitempty"`
}

// Outcome is what a processed intent produced.
type Outcome struct {
	Action        Action  `json:"action"`
	Record        *Record `json:"record,omitempty"`
	AutoCompleted bool    `json:"auto_completed"`
	Message       string  `json:"message"`
}

// StatusSnapshot is the cached read model behind the attendance status endpoint.
type StatusSnapshot struct {
	EmployeeID string                    `json:"employee_id"`
	State      period.UnifiedPeriodState `json:"state"`
	Validation period.StateValidation    `json:"validation"`
	OpenRecord *Record                   `json:"open_record,omitempty"`
	Degraded   bool                      `json:"degraded"`
	ComputedAt time.Time                 `json:"computed_at"`
}
