package period

import (
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

func (r *Resolver) buildValidationFlags(res resolution, record *attendance.Record, schedule period.DaySchedule, transition period.Transition, now time.Time) period.ValidationFlags {
	cur := res.current
	w := cur.Window
	open := record.IsOpen()

	flags := period.ValidationFlags{
		IsCheckingIn:       !open,
		IsOvertime:         cur.Type == period.TypeOvertime,
		IsDayOffOvertime:   res.state.Activity.IsDayOffOvertime,
		IsOvernight:        cur.IsOvernight,
		IsHoliday:          schedule.IsHoliday,
		IsDayOff:           cur.IsDayOff,
		RequiresTransition: transition.Required,
	}

	if regular := findByType(res.periods, period.TypeRegular); regular != nil && !regular.IsDayOff {
		flags.IsInsideShift = regular.Window.Contains(now)
	}
	flags.IsOutsideShift = !flags.IsInsideShift

	if !open {
		flags.IsEarlyCheckIn = now.Before(w.Start)
		flags.IsLateCheckIn = now.After(w.Start)
		return flags
	}

	checkIn := *record.CheckInTime
	flags.IsEarlyCheckIn = checkIn.Before(w.Start)
	flags.IsLateCheckIn = checkIn.After(w.Start)
	flags.IsLateCheckOut = now.After(w.End.Add(r.cfg.LateCheckOut))
	flags.IsVeryLateCheckOut = now.After(w.End.Add(r.cfg.VeryLateCheckOut))

	handingOff := transition.Required && transition.From == cur.Type && transition.At.Equal(w.End)
	flags.HasPendingTransition = res.state.Activity.IsActive && handingOff
	flags.IsEarlyCheckOut = now.Before(w.End) && !handingOff
	flags.IsEmergencyLeave = res.state.Activity.IsActive &&
		cur.Type == period.TypeRegular &&
		flags.IsEarlyCheckOut &&
		!now.After(w.Midpoint())

	nextStarted := res.next != nil &&
		now.After(res.next.Window.Start) &&
		now.After(w.End.Add(r.cfg.TransitionGrace))
	overnightOverrun := cur.IsOvernight && now.After(w.End.Add(r.cfg.LateCheckOut))
	flags.RequiresAutoCompletion = flags.IsVeryLateCheckOut || nextStarted || overnightOverrun

	r.logger.Debug("validation flags computed",
		"period_type", cur.Type,
		"late_check_out", flags.IsLateCheckOut,
		"very_late_check_out", flags.IsVeryLateCheckOut,
		"requires_auto_completion", flags.RequiresAutoCompletion,
		"pending_transition", flags.HasPendingTransition,
	)
	return flags
}

// canCheckIn allows a check-in in [start - early buffer, start + late check-in threshold]
// when no record is open.
func (r *Resolver) canCheckIn(res resolution, record *attendance.Record, now time.Time) bool {
	if record.IsOpen() || res.noPeriod || res.degraded {
		return false
	}
	cur := res.current
	if cur.IsDayOff && cur.Type == period.TypeRegular {
		return false
	}
	opens := cur.Window.Start.Add(-r.cfg.EarlyBuffer(cur.Type))
	closes := cur.Window.Start.Add(r.cfg.LateCheckIn)
	return !now.Before(opens) && !now.After(closes)
}

// canCheckOut allows closing the matched open record. Overtime may always be closed.
// A regular record past the very-late threshold is left to auto-completion.
func (r *Resolver) canCheckOut(res resolution, flags period.ValidationFlags, now time.Time) bool {
	if !res.state.Activity.IsActive {
		return false
	}
	cur := res.current
	if cur.Type == period.TypeOvertime {
		return true
	}
	if flags.RequiresAutoCompletion {
		return false
	}
	inBounds := r.windows.IsWithinBounds(now, cur.Window, BoundsOptions{
		IncludeEarly:    true,
		IncludeVeryLate: true,
		PeriodType:      cur.Type,
	})
	return inBounds || flags.HasPendingTransition
}

func (r *Resolver) determineAllowedStatus(res resolution, record *attendance.Record, flags period.ValidationFlags, transition period.Transition, now time.Time) period.StateValidation {
	var allowed bool
	if record.IsOpen() {
		allowed = r.canCheckOut(res, flags, now)
	} else {
		allowed = r.canCheckIn(res, record, now)
	}

	code, reason := r.validationMessage(res, flags, now)

	return period.StateValidation{
		Allowed:  allowed,
		Reason:   reason,
		Code:     code,
		Flags:    flags,
		Metadata: r.buildMetadata(res, record, transition, now),
	}
}

func (r *Resolver) buildMetadata(res resolution, record *attendance.Record, transition period.Transition, now time.Time) period.ValidationMetadata {
	cur := res.current
	w := cur.Window
	meta := period.ValidationMetadata{EvaluatedAt: now}

	if record.IsOpen() {
		if now.After(w.End) {
			meta.MinutesLate = minutesBetween(w.End, now)
		}
	} else if !res.noPeriod {
		opens := w.Start.Add(-r.cfg.EarlyBuffer(cur.Type))
		closes := w.Start.Add(r.cfg.LateCheckIn)
		meta.CheckInOpensAt = &opens
		meta.CheckInClosesAt = &closes
		if now.Before(w.Start) {
			meta.MinutesEarly = minutesBetween(now, w.Start)
		} else {
			meta.MinutesLate = minutesBetween(w.Start, now)
		}
	}

	if transition.Required {
		at := transition.At
		meta.TransitionAt = &at
	}
	if res.next != nil {
		nextType := res.next.Type
		nextStart := res.next.Window.Start
		meta.NextPeriod = &nextType
		meta.NextPeriodStart = &nextStart
	}
	return meta
}
