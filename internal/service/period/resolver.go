package period

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	gocache "github.com/patrickmn/go-cache"
)

const noRecordKey = "NONE"

// resolution is the cached part of an evaluation: the state and the period sequence it came from.
type resolution struct {
	state    period.UnifiedPeriodState
	periods  []period.PeriodDefinition
	current  *period.PeriodDefinition
	next     *period.PeriodDefinition
	degraded bool
	noPeriod bool
}

// Resolver turns a schedule, an optional attendance record and an instant into a
// period state and an allow/deny decision. It is safe for concurrent use.
type Resolver struct {
	cfg     Config
	windows *TimeWindowManager
	periods *ManagementService
	cache   *gocache.Cache
	logger  *slog.Logger
}

func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	windows := NewTimeWindowManager(cfg)
	return &Resolver{
		cfg:     cfg,
		windows: windows,
		periods: NewManagementService(cfg, windows, logger),
		cache:   gocache.New(cfg.StateCacheTTL, 2*cfg.StateCacheTTL),
		logger:  logger,
	}
}

func (r *Resolver) Windows() *TimeWindowManager {
	return r.windows
}

func (r *Resolver) Periods() *ManagementService {
	return r.periods
}

// AnchorDate picks the civil date whose schedule governs now. An open record keeps the
// date it was checked in on. Otherwise yesterday is used while yesterday's overnight
// shift still covers now.
func (r *Resolver) AnchorDate(shift period.ShiftData, record *attendance.Record, now time.Time) (time.Time, error) {
	if record.IsOpen() {
		if !record.Date.IsZero() {
			y, m, d := record.Date.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, r.windows.Location()), nil
		}
		return r.windows.CivilDate(*record.CheckInTime), nil
	}

	today := r.windows.CivilDate(now)
	overnight, err := IsOvernight(shift.StartTime, shift.EndTime)
	if err != nil {
		return today, err
	}
	if overnight {
		yesterday := today.AddDate(0, 0, -1)
		w, err := r.windows.WindowFor(shift.StartTime, shift.EndTime, yesterday)
		if err != nil {
			return today, err
		}
		if r.windows.IsWithinBounds(now, w, BoundsOptions{IncludeLate: true, PeriodType: period.TypeRegular}) {
			return yesterday, nil
		}
	}
	return today, nil
}

// ResolveCurrentPeriod returns the state of the period relevant to now.
func (r *Resolver) ResolveCurrentPeriod(employeeID string, record *attendance.Record, schedule period.DaySchedule, now time.Time) (period.UnifiedPeriodState, error) {
	res, err := r.resolve(employeeID, record, schedule, now)
	if err != nil {
		return period.UnifiedPeriodState{}, err
	}
	return res.state, nil
}

// Evaluate runs the full pipeline: resolve the period, derive the flags and decide.
func (r *Resolver) Evaluate(employeeID string, record *attendance.Record, schedule period.DaySchedule, now time.Time) (period.Evaluation, error) {
	now = now.In(r.windows.Location())

	res, err := r.resolve(employeeID, record, schedule, now)
	if err != nil {
		return period.Evaluation{}, err
	}

	transition := r.periods.DetectTransition(res.periods, now)
	flags := r.buildValidationFlags(res, record, schedule, transition, now)
	validation := r.determineAllowedStatus(res, record, flags, transition, now)

	r.logger.Debug("attendance decision",
		"employee_id", employeeID,
		"period_type", res.state.Type,
		"allowed", validation.Allowed,
		"code", validation.Code,
	)

	ev := period.Evaluation{
		State:      res.state,
		Validation: validation,
		Periods:    slices.Clone(res.periods),
		Transition: transition,
		Degraded:   res.degraded,
		NoPeriod:   res.noPeriod,
	}
	if res.current != nil {
		cur := *res.current
		ev.Current = &cur
	}
	if res.next != nil {
		next := *res.next
		ev.Next = &next
	}
	return ev, nil
}

// Invalidate drops every cached state of the employee. Call it after the record changes.
func (r *Resolver) Invalidate(employeeID string) {
	prefix := employeeID + ":"
	for key := range r.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			r.cache.Delete(key)
		}
	}
}

func (r *Resolver) cacheKey(employeeID string, record *attendance.Record, now time.Time) string {
	kind := noRecordKey
	if record.IsOpen() {
		kind = string(record.Type)
	}
	bucket := now.Truncate(r.cfg.CacheGranularity).Unix()
	return fmt.Sprintf("%s:%s:%d", employeeID, kind, bucket)
}

func (r *Resolver) resolve(employeeID string, record *attendance.Record, schedule period.DaySchedule, now time.Time) (resolution, error) {
	now = now.In(r.windows.Location())
	key := r.cacheKey(employeeID, record, now)

	if cached, ok := r.cache.Get(key); ok {
		res := cached.(resolution)
		if res.state.TimeWindow.Contains(now) {
			return res, nil
		}
		r.logger.Debug("recomputing period state",
			"employee_id", employeeID,
			"reason", period.ErrStaleCacheRead,
		)
		r.cache.Delete(key)
	}

	res, err := r.compute(record, schedule, now)
	if err != nil {
		return resolution{}, err
	}

	r.logger.Debug("period selected",
		"employee_id", employeeID,
		"period_type", res.state.Type,
		"window_start", res.state.TimeWindow.Start,
		"window_end", res.state.TimeWindow.End,
		"active", res.state.Activity.IsActive,
		"degraded", res.degraded,
		"no_period", res.noPeriod,
	)

	r.cache.SetDefault(key, res)
	return res, nil
}

func (r *Resolver) compute(record *attendance.Record, schedule period.DaySchedule, now time.Time) (resolution, error) {
	anchor := schedule.Date
	if anchor.IsZero() {
		var err error
		anchor, err = r.AnchorDate(schedule.Shift, record, now)
		if err != nil {
			return resolution{}, err
		}
	}

	periods, err := r.periods.BuildPeriods(schedule, anchor)
	if err != nil {
		return resolution{}, err
	}
	if len(periods) == 0 {
		return resolution{}, errors.New("empty period sequence")
	}

	res := resolution{periods: periods}
	matched := false

	if record.IsOpen() {
		res.current = findByType(periods, record.Type)
		if res.current == nil {
			res.degraded = true
			res.current = defaultPeriod(periods)
		} else {
			matched = true
		}
	} else {
		// Inside a hand-off window a fresh check-in belongs to the incoming period.
		if t := r.periods.DetectTransition(periods, now); t.Required {
			res.current = findStartingAt(periods, t.At)
		}
		if res.current == nil {
			res.current, _ = r.periods.RelevantPeriod(periods, now)
		}
		if res.current == nil {
			res.noPeriod = true
			res.current = defaultPeriod(periods)
		}
	}

	res.next = r.periods.NextPeriod(periods, res.current)
	res.state = r.buildState(res, record, matched, now)
	return res, nil
}

func (r *Resolver) buildState(res resolution, record *attendance.Record, matched bool, now time.Time) period.UnifiedPeriodState {
	cur := res.current
	w := cur.Window

	state := period.UnifiedPeriodState{
		Type:       cur.Type,
		TimeWindow: w,
		Activity: period.Activity{
			IsActive:   matched,
			IsOvertime: cur.Type == period.TypeOvertime,
		},
		Validation: period.WindowValidation{
			IsEarly:     now.Before(w.Start),
			IsLate:      now.After(w.End),
			IsOvernight: cur.IsOvernight,
			IsConnected: r.periods.IsConnected(res.periods, cur),
		},
	}

	if cur.Overtime != nil {
		state.Activity.IsDayOffOvertime = cur.Overtime.IsDayOffOvertime || cur.IsDayOff
		state.Activity.IsInsideShiftHours = cur.Overtime.IsInsideShiftHours
	}

	if matched {
		checkIn := *record.CheckInTime
		state.Activity.CheckIn = &checkIn
		if record.CheckOutTime != nil {
			checkOut := *record.CheckOutTime
			state.Activity.CheckOut = &checkOut
		}
	}

	if !res.noPeriod && !res.degraded {
		state.Validation.IsWithinBounds = r.windows.IsWithinBounds(now, w, BoundsOptions{
			IncludeEarly: true,
			IncludeLate:  true,
			PeriodType:   cur.Type,
		})
	}
	return state
}
