package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

// TimeOfDay is an offset from local midnight.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay accepts "HH:mm" and "HH:mm:ss". Anything else is ErrInvalidTimeWindow.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q is not a time of day", period.ErrInvalidTimeWindow, s)
}

// IsOvernight reports whether a window ends on the day after it starts.
func IsOvernight(start, end string) (bool, error) {
	s, e, err := parseWindow(start, end)
	if err != nil {
		return false, err
	}
	return e.Duration() < s.Duration(), nil
}

func parseWindow(start, end string) (TimeOfDay, TimeOfDay, error) {
	s, err := ParseTimeOfDay(strings.TrimSpace(start))
	if err != nil {
		return TimeOfDay{}, TimeOfDay{}, err
	}
	e, err := ParseTimeOfDay(strings.TrimSpace(end))
	if err != nil {
		return TimeOfDay{}, TimeOfDay{}, err
	}
	if s == e {
		return TimeOfDay{}, TimeOfDay{}, fmt.Errorf("%w: %s-%s has zero length", period.ErrInvalidTimeWindow, start, end)
	}
	return s, e, nil
}

// BoundsOptions selects which grace buffers IsWithinBounds applies.
type BoundsOptions struct {
	IncludeEarly    bool
	IncludeLate     bool
	IncludeVeryLate bool
	PeriodType      period.Type
}

// TimeWindowManager does all time-of-day arithmetic in one fixed civil time zone.
type TimeWindowManager struct {
	cfg Config
	loc *time.Location
}

func NewTimeWindowManager(cfg Config) *TimeWindowManager {
	return &TimeWindowManager{cfg: cfg, loc: cfg.location()}
}

func (m *TimeWindowManager) Location() *time.Location {
	return m.loc
}

// CivilDate returns local midnight of the day t falls on.
func (m *TimeWindowManager) CivilDate(t time.Time) time.Time {
	y, mo, d := t.In(m.loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, m.loc)
}

// WindowFor builds the absolute window of a time-of-day range on the civil date of ref.
// An end earlier than the start rolls over to the next day.
func (m *TimeWindowManager) WindowFor(start, end string, ref time.Time) (period.TimeWindow, error) {
	s, e, err := parseWindow(start, end)
	if err != nil {
		return period.TimeWindow{}, err
	}

	y, mo, d := ref.In(m.loc).Date()
	startAt := time.Date(y, mo, d, s.Hour, s.Minute, s.Second, 0, m.loc)
	endDay := d
	if e.Duration() < s.Duration() {
		endDay++
	}
	endAt := time.Date(y, mo, endDay, e.Hour, e.Minute, e.Second, 0, m.loc)

	return period.TimeWindow{Start: startAt, End: endAt}, nil
}

// IsWithinBounds tests now against the window widened by the requested buffers.
func (m *TimeWindowManager) IsWithinBounds(now time.Time, w period.TimeWindow, opts BoundsOptions) bool {
	lower, upper := w.Start, w.End
	if opts.IncludeEarly {
		lower = lower.Add(-m.cfg.EarlyBuffer(opts.PeriodType))
	}
	switch {
	case opts.IncludeVeryLate:
		upper = upper.Add(m.cfg.VeryLateCheckOut)
	case opts.IncludeLate:
		upper = upper.Add(m.cfg.LateCheckOut)
	}
	return !now.Before(lower) && !now.After(upper)
}

// Clock renders t as local "15:04".
func (m *TimeWindowManager) Clock(t time.Time) string {
	return t.In(m.loc).Format("15:04")
}

func minutesBetween(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}
