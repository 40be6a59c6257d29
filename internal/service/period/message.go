package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

// validationMessage walks the reason cascade and returns the first rule that matches.
// Order: day off, overnight, auto-completion, emergency leave, active-record lateness,
// check-in window, overtime, inside shift, outside any period.
func (r *Resolver) validationMessage(res resolution, flags period.ValidationFlags, now time.Time) (period.ReasonCode, string) {
	cur := res.current
	w := cur.Window
	open := !flags.IsCheckingIn
	hhmm := r.windows.Clock

	if (flags.IsDayOff || flags.IsHoliday) && !flags.IsDayOffOvertime {
		if flags.IsHoliday {
			return period.ReasonHoliday, "Today is a holiday, no regular shift is scheduled"
		}
		return period.ReasonDayOff, "Today is your day off"
	}

	if flags.IsOvernight && res.state.Validation.IsWithinBounds {
		return period.ReasonOvernightShift, fmt.Sprintf("Overnight %s %s-%s, ending on the next day",
			periodLabel(cur.Type), hhmm(w.Start), hhmm(w.End))
	}

	if flags.RequiresAutoCompletion {
		return period.ReasonAutoCompletion, fmt.Sprintf("Check-out is overdue, the %s will be completed automatically at %s",
			periodLabel(cur.Type), hhmm(w.End))
	}

	if flags.IsEmergencyLeave {
		return period.ReasonEmergencyLeave, fmt.Sprintf("Checking out before %s is recorded as emergency leave",
			hhmm(w.Midpoint()))
	}

	if open {
		switch {
		case flags.IsVeryLateCheckOut:
			return period.ReasonVeryLateCheckOut, fmt.Sprintf("Very late check-out, %d minutes after %s",
				minutesBetween(w.End, now), hhmm(w.End))
		case flags.IsLateCheckOut:
			return period.ReasonLateCheckOut, fmt.Sprintf("Late check-out, %d minutes after %s",
				minutesBetween(w.End, now), hhmm(w.End))
		case flags.HasPendingTransition && res.next != nil:
			return period.ReasonPendingTransition, fmt.Sprintf("Check out of the %s to start %s at %s",
				periodLabel(cur.Type), periodLabel(res.next.Type), hhmm(res.next.Window.Start))
		}
	}

	if !open {
		if res.noPeriod {
			return period.ReasonNoRemainingPeriod, "No remaining work period today"
		}
		opens := w.Start.Add(-r.cfg.EarlyBuffer(cur.Type))
		closes := w.Start.Add(r.cfg.LateCheckIn)
		switch {
		case now.Before(opens):
			return period.ReasonTooEarly, fmt.Sprintf("Too early, check-in for the %s opens at %s",
				periodLabel(cur.Type), hhmm(opens))
		case now.Before(w.Start):
			return period.ReasonEarlyCheckIn, fmt.Sprintf("Early check-in, the %s starts at %s",
				periodLabel(cur.Type), hhmm(w.Start))
		case now.Equal(w.Start):
			return period.ReasonOnTimeCheckIn, fmt.Sprintf("On time for the %s starting at %s",
				periodLabel(cur.Type), hhmm(w.Start))
		case !now.After(closes):
			return period.ReasonLateCheckIn, fmt.Sprintf("Late check-in, %d minutes after %s",
				minutesBetween(w.Start, now), hhmm(w.Start))
		default:
			return period.ReasonCheckInClosed, fmt.Sprintf("Check-in for the %s closed at %s",
				periodLabel(cur.Type), hhmm(closes))
		}
	}

	if cur.Type == period.TypeOvertime {
		return period.ReasonOvertimePeriod, fmt.Sprintf("Overtime %s-%s", hhmm(w.Start), hhmm(w.End))
	}

	if res.state.Validation.IsWithinBounds {
		return period.ReasonInsideShift, fmt.Sprintf("Within regular shift %s-%s", hhmm(w.Start), hhmm(w.End))
	}

	if res.degraded {
		return period.ReasonScheduleMismatch, "The open attendance record does not match today's schedule"
	}
	return period.ReasonOutsidePeriod, "Outside of any work period"
}

func periodLabel(t period.Type) string {
	switch t {
	case period.TypeOvertime:
		return "overtime"
	case period.TypeRegular:
		return "regular shift"
	}
	return strings.ToLower(string(t))
}
