package period

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

// ManagementService assembles the chronological period sequence of a day.
type ManagementService struct {
	cfg     Config
	windows *TimeWindowManager
	logger  *slog.Logger
}

func NewManagementService(cfg Config, windows *TimeWindowManager, logger *slog.Logger) *ManagementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagementService{cfg: cfg, windows: windows, logger: logger}
}

// SelectOvertime picks the overtime used for the day. When more than one is
// approved the one starting latest wins, ties going to the later entry.
func (s *ManagementService) SelectOvertime(overtimes []period.OvertimeContext) (*period.OvertimeContext, error) {
	if len(overtimes) == 0 {
		return nil, nil
	}

	chosen := -1
	var chosenStart time.Duration
	for i, ot := range overtimes {
		start, err := ParseTimeOfDay(ot.StartTime)
		if err != nil {
			return nil, fmt.Errorf("overtime %s: %w", ot.ID, err)
		}
		if chosen == -1 || start.Duration() >= chosenStart {
			chosen, chosenStart = i, start.Duration()
		}
	}

	if len(overtimes) > 1 {
		s.logger.Warn("multiple overtimes approved for one day, keeping the latest",
			"count", len(overtimes),
			"overtime_id", overtimes[chosen].ID,
		)
	}

	ot := overtimes[chosen]
	return &ot, nil
}

// BuildPeriods returns the day's periods ordered by start. A day off or holiday
// with approved overtime yields only the overtime period.
func (s *ManagementService) BuildPeriods(schedule period.DaySchedule, anchor time.Time) ([]period.PeriodDefinition, error) {
	date := s.windows.CivilDate(anchor)
	shift := schedule.Shift
	isDayOff := schedule.IsHoliday || !shift.WorksOn(date.Weekday())

	regularWindow, err := s.windows.WindowFor(shift.StartTime, shift.EndTime, date)
	if err != nil {
		return nil, fmt.Errorf("regular shift: %w", err)
	}
	shiftStart, _ := ParseTimeOfDay(shift.StartTime)
	shiftEnd, _ := ParseTimeOfDay(shift.EndTime)

	regular := period.PeriodDefinition{
		Type:        period.TypeRegular,
		StartTime:   shift.StartTime,
		EndTime:     shift.EndTime,
		Window:      regularWindow,
		Sequence:    2,
		IsOvernight: shiftEnd.Duration() < shiftStart.Duration(),
		IsDayOff:    isDayOff,
	}

	ot, err := s.SelectOvertime(schedule.Overtimes)
	if err != nil {
		return nil, err
	}
	if ot == nil {
		return []period.PeriodDefinition{regular}, nil
	}

	overtimeWindow, err := s.windows.WindowFor(ot.StartTime, ot.EndTime, date)
	if err != nil {
		return nil, fmt.Errorf("overtime %s: %w", ot.ID, err)
	}
	otStart, _ := ParseTimeOfDay(ot.StartTime)
	otEnd, _ := ParseTimeOfDay(ot.EndTime)

	overtime := period.PeriodDefinition{
		Type:        period.TypeOvertime,
		StartTime:   ot.StartTime,
		EndTime:     ot.EndTime,
		Window:      overtimeWindow,
		IsOvernight: otEnd.Duration() < otStart.Duration(),
		IsDayOff:    isDayOff,
		Overtime:    ot,
	}

	if isDayOff {
		overtime.Sequence = 1
		return []period.PeriodDefinition{overtime}, nil
	}

	before := otStart.Duration() < shiftStart.Duration() && otStart != shiftEnd
	if before {
		overtime.Sequence = 1
		return []period.PeriodDefinition{overtime, regular}, nil
	}

	// Overtime after an overnight shift lands on the day the shift ends.
	if overtime.Window.Start.Before(regular.Window.Start) {
		overtime.Window, err = s.windows.WindowFor(ot.StartTime, ot.EndTime, date.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("overtime %s: %w", ot.ID, err)
		}
	}
	overtime.Sequence = 3

	periods := []period.PeriodDefinition{regular, overtime}
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].Window.Start.Before(periods[j].Window.Start)
	})
	return periods, nil
}

// RelevantPeriod picks the period "now" belongs to. A period is relevant when now is in
// [start - lookback, end]. Failing that the first upcoming period is returned with
// upcoming=true. A nil result means nothing is left for the day.
func (s *ManagementService) RelevantPeriod(periods []period.PeriodDefinition, now time.Time) (p *period.PeriodDefinition, upcoming bool) {
	for i := range periods {
		w := periods[i].Window
		if !now.Before(w.Start.Add(-s.cfg.RelevanceLookback)) && !now.After(w.End) {
			return &periods[i], false
		}
	}
	for i := range periods {
		if periods[i].Window.Start.After(now) {
			return &periods[i], true
		}
	}
	return nil, false
}

// DetectTransition reports a required hand-off when one period ends exactly where the
// next begins and now is within [boundary - lookahead, boundary + grace].
func (s *ManagementService) DetectTransition(periods []period.PeriodDefinition, now time.Time) period.Transition {
	for i := 0; i+1 < len(periods); i++ {
		from, to := periods[i], periods[i+1]
		if !from.Window.End.Equal(to.Window.Start) {
			continue
		}
		at := from.Window.End
		if !now.Before(at.Add(-s.cfg.TransitionLookahead)) && !now.After(at.Add(s.cfg.TransitionGrace)) {
			return period.Transition{Required: true, From: from.Type, To: to.Type, At: at}
		}
	}
	return period.Transition{}
}

// NextPeriod returns the period following current in the sequence.
func (s *ManagementService) NextPeriod(periods []period.PeriodDefinition, current *period.PeriodDefinition) *period.PeriodDefinition {
	if current == nil {
		return nil
	}
	for i := range periods {
		if periods[i].Type == current.Type && periods[i].Window.Start.Equal(current.Window.Start) {
			if i+1 < len(periods) {
				return &periods[i+1]
			}
			return nil
		}
	}
	return nil
}

// IsConnected reports whether p touches a neighbouring period.
func (s *ManagementService) IsConnected(periods []period.PeriodDefinition, p *period.PeriodDefinition) bool {
	if p == nil {
		return false
	}
	for _, other := range periods {
		if other.Type == p.Type && other.Window.Start.Equal(p.Window.Start) {
			continue
		}
		if other.Window.End.Equal(p.Window.Start) || other.Window.Start.Equal(p.Window.End) {
			return true
		}
	}
	return false
}

func findByType(periods []period.PeriodDefinition, t period.Type) *period.PeriodDefinition {
	for i := range periods {
		if periods[i].Type == t {
			return &periods[i]
		}
	}
	return nil
}

func findStartingAt(periods []period.PeriodDefinition, at time.Time) *period.PeriodDefinition {
	for i := range periods {
		if periods[i].Window.Start.Equal(at) {
			return &periods[i]
		}
	}
	return nil
}

// defaultPeriod anchors degraded and terminal states on the regular shift when there is one.
func defaultPeriod(periods []period.PeriodDefinition) *period.PeriodDefinition {
	if p := findByType(periods, period.TypeRegular); p != nil {
		return p
	}
	if len(periods) > 0 {
		return &periods[0]
	}
	return nil
}
