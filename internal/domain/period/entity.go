package period

import (
	"slices"
	"time"
)

// Type classifies a period. A period is either the regular shift or an approved overtime.
type Type string

const (
	TypeRegular  Type = "REGULAR"
	TypeOvertime Type = "OVERTIME"
)

var TypeValues = []string{
	string(TypeRegular),
	string(TypeOvertime),
}

func (t Type) IsValid() bool {
	return t == TypeRegular || t == TypeOvertime
}

// TimeWindow is an absolute [Start, End] interval. End is after Start even for overnight windows.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies in the closed interval [Start, End].
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Midpoint is the instant halfway through the window.
func (w TimeWindow) Midpoint() time.Time {
	return w.Start.Add(w.Duration() / 2)
}

func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// ShiftData is the regular shift assigned to an employee for one day.
// StartTime and EndTime are time-of-day strings ("08:00" or "08:00:00").
type ShiftData struct {
	ShiftCode string         `json:"shift_code"`
	Name      string         `json:"name"`
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time"`
	WorkDays  []time.Weekday `json:"work_days"`
}

// WorksOn reports whether the shift is scheduled on the given weekday.
func (s ShiftData) WorksOn(d time.Weekday) bool {
	return slices.Contains(s.WorkDays, d)
}

// OvertimeContext is an approved overtime request for one day.
type OvertimeContext struct {
	ID                 string `json:"id"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	IsDayOffOvertime   bool   `json:"is_day_off_overtime"`
	IsInsideShiftHours bool   `json:"is_inside_shift_hours"`
	DurationMinutes    int    `json:"duration_minutes"`
}

// DaySchedule is everything the scheduling store knows about an employee on one civil date.
type DaySchedule struct {
	EmployeeID  string            `json:"employee_id"`
	Date        time.Time         `json:"date"`
	Shift       ShiftData         `json:"shift"`
	Overtimes   []OvertimeContext `json:"overtimes,omitempty"`
	IsHoliday   bool              `json:"is_holiday"`
	HolidayName string            `json:"holiday_name,omitempty"`
}

// PeriodDefinition is one entry of the chronological period sequence of a day.
// It is rebuilt on every resolution and never persisted.
type PeriodDefinition struct {
	Type        Type             `json:"type"`
	StartTime   string           `json:"start_time"`
	EndTime     string           `json:"end_time"`
	Window      TimeWindow       `json:"window"`
	Sequence    int              `json:"sequence"`
	IsOvernight bool             `json:"is_overnight"`
	IsDayOff    bool             `json:"is_day_off"`
	Overtime    *OvertimeContext `json:"overtime,omitempty"`
}

// Activity describes the attendance record matched to the resolved period, if any.
type Activity struct {
	IsActive           bool       `json:"is_active"`
	CheckIn            *time.Time `json:"check_in,omitempty"`
	CheckOut           *time.Time `json:"check_out,omitempty"`
	IsOvertime         bool       `json:"is_overtime"`
	IsDayOffOvertime   bool       `json:"is_day_off_overtime"`
	IsInsideShiftHours bool       `json:"is_inside_shift_hours"`
}

// WindowValidation classifies "now" against the resolved window.
type WindowValidation struct {
	IsWithinBounds bool `json:"is_within_bounds"`
	IsEarly        bool `json:"is_early"`
	IsLate         bool `json:"is_late"`
	IsOvernight    bool `json:"is_overnight"`
	IsConnected    bool `json:"is_connected"`
}

// UnifiedPeriodState is the resolver output for one employee at one instant.
type UnifiedPeriodState struct {
	Type       Type             `json:"type"`
	TimeWindow TimeWindow       `json:"time_window"`
	Activity   Activity         `json:"activity"`
	Validation WindowValidation `json:"validation"`
}

// Transition describes a hand-off between two adjacent periods.
type Transition struct {
	Required bool      `json:"required"`
	From     Type      `json:"from,omitempty"`
	To       Type      `json:"to,omitempty"`
	At       time.Time `json:"at"`
}

type ValidationFlags struct {
	IsCheckingIn           bool `json:"is_checking_in"`
	IsLateCheckIn          bool `json:"is_late_check_in"`
	IsEarlyCheckIn         bool `json:"is_early_check_in"`
	IsLateCheckOut         bool `json:"is_late_check_out"`
	IsVeryLateCheckOut     bool `json:"is_very_late_check_out"`
	IsEarlyCheckOut        bool `json:"is_early_check_out"`
	RequiresAutoCompletion bool `json:"requires_auto_completion"`
	RequiresTransition     bool `json:"requires_transition"`
	HasPendingTransition   bool `json:"has_pending_transition"`
	IsEmergencyLeave       bool `json:"is_emergency_leave"`
	IsOvertime             bool `json:"is_overtime"`
	IsDayOffOvertime       bool `json:"is_day_off_overtime"`
	IsInsideShift          bool `json:"is_inside_shift"`
	IsOutsideShift         bool `json:"is_outside_shift"`
	IsOvernight            bool `json:"is_overnight"`
	IsHoliday              bool `json:"is_holiday"`
	IsDayOff               bool `json:"is_day_off"`
}

// ReasonCode identifies which rule of the message cascade produced the reason.
type ReasonCode string

const (
	ReasonDayOff            ReasonCode = "DAY_OFF"
	ReasonHoliday           ReasonCode = "HOLIDAY"
	ReasonOvernightShift    ReasonCode = "OVERNIGHT_SHIFT"
	ReasonAutoCompletion    ReasonCode = "AUTO_COMPLETION_REQUIRED"
	ReasonEmergencyLeave    ReasonCode = "EMERGENCY_LEAVE"
	ReasonVeryLateCheckOut  ReasonCode = "VERY_LATE_CHECK_OUT"
	ReasonLateCheckOut      ReasonCode = "LATE_CHECK_OUT"
	ReasonPendingTransition ReasonCode = "PENDING_TRANSITION"
	ReasonTooEarly          ReasonCode = "TOO_EARLY"
	ReasonEarlyCheckIn      ReasonCode = "EARLY_CHECK_IN"
	ReasonLateCheckIn       ReasonCode = "LATE_CHECK_IN"
	ReasonCheckInClosed     ReasonCode = "CHECK_IN_CLOSED"
	ReasonOnTimeCheckIn     ReasonCode = "ON_TIME_CHECK_IN"
	ReasonOvertimePeriod    ReasonCode = "OVERTIME_PERIOD"
	ReasonInsideShift       ReasonCode = "INSIDE_SHIFT"
	ReasonOutsidePeriod     ReasonCode = "OUTSIDE_PERIOD"
	ReasonNoRemainingPeriod ReasonCode = "NO_REMAINING_PERIOD"
	ReasonScheduleMismatch  ReasonCode = "SCHEDULE_MISMATCH"
	ReasonScheduleMissing   ReasonCode = "SCHEDULE_MISSING"
	ReasonUnavailable       ReasonCode = "RESOLUTION_UNAVAILABLE"
)

type ValidationMetadata struct {
	EvaluatedAt     time.Time  `json:"evaluated_at"`
	CheckInOpensAt  *time.Time `json:"check_in_opens_at,omitempty"`
	CheckInClosesAt *time.Time `json:"check_in_closes_at,omitempty"`
	MinutesEarly    int        `json:"minutes_early,omitempty"`
	MinutesLate     int        `json:"minutes_late,omitempty"`
	TransitionAt    *time.Time `json:"transition_at,omitempty"`
	NextPeriod      *Type      `json:"next_period,omitempty"`
	NextPeriodStart *time.Time `json:"next_period_start,omitempty"`
}

// StateValidation is the allow/deny decision with its reason.
type StateValidation struct {
	Allowed  bool               `json:"allowed"`
	Reason   string             `json:"reason"`
	Code     ReasonCode         `json:"code"`
	Flags    ValidationFlags    `json:"flags"`
	Metadata ValidationMetadata `json:"metadata"`
}

// Evaluation bundles a resolved state with everything derived from it.
type Evaluation struct {
	State      UnifiedPeriodState `json:"state"`
	Validation StateValidation    `json:"validation"`
	Current    *PeriodDefinition  `json:"current,omitempty"`
	Next       *PeriodDefinition  `json:"next,omitempty"`
	Periods    []PeriodDefinition `json:"periods"`
	Transition Transition         `json:"transition"`
	Degraded   bool               `json:"degraded"`
	NoPeriod   bool               `json:"no_period"`
}
