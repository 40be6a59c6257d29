package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type scheduleRepository struct {
	db *database.DB
}

// GetShiftAndOvertime implements period.ScheduleRepository. The shift, the holiday and the
// approved overtime of the day are fetched in one round trip.
func (s *scheduleRepository) GetShiftAndOvertime(ctx context.Context, employeeID string, date time.Time) (period.DaySchedule, error) {
	q := GetQuerier(ctx, s.db)
	day := date.Format("2006-01-02")

	// An assignment covering the date overrides the employee's default schedule. The
	// shift times of a day without a schedule row fall back to the first configured day.
	shiftQuery := `
		WITH target_schedule AS (
			SELECT COALESCE(
				(
					SELECT work_schedule_id
					FROM employee_schedule_assignments
					WHERE employee_id = $1
					  AND $2::date BETWEEN start_date AND end_date
					ORDER BY start_date DESC
					LIMIT 1
				),
				(
					SELECT work_schedule_id
					FROM employees
					WHERE id = $1
				)
			) AS id
		)
		SELECT
			ws.id,
			ws.name,
			to_char(COALESCE(today.clock_in_time, first_day.clock_in_time), 'HH24:MI:SS'),
			to_char(COALESCE(today.clock_out_time, first_day.clock_out_time), 'HH24:MI:SS'),
			COALESCE(
				(SELECT array_agg(wst.day_of_week ORDER BY wst.day_of_week)
				 FROM work_schedule_times wst
				 WHERE wst.work_schedule_id = ws.id),
				'{}'::int[]
			)
		FROM target_schedule ts
		JOIN work_schedules ws ON ws.id = ts.id
		LEFT JOIN work_schedule_times today ON today.work_schedule_id = ws.id
			AND today.day_of_week = EXTRACT(ISODOW FROM $2::date)::int
		LEFT JOIN LATERAL (
			SELECT clock_in_time, clock_out_time
			FROM work_schedule_times
			WHERE work_schedule_id = ws.id
			ORDER BY day_of_week
			LIMIT 1
		) first_day ON TRUE
		WHERE ws.deleted_at IS NULL`

	holidayQuery := `
		SELECT h.name
		FROM holidays h
		JOIN employees e ON e.company_id = h.company_id
		WHERE e.id = $1
		  AND h.date = $2::date
		LIMIT 1`

	overtimeQuery := `
		SELECT id, to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS')
		FROM overtime_requests
		WHERE employee_id = $1
		  AND date = $2::date
		  AND status = 'APPROVED'
		ORDER BY created_at ASC`

	batch := &pgx.Batch{}
	batch.Queue(shiftQuery, employeeID, day)
	batch.Queue(holidayQuery, employeeID, day)
	batch.Queue(overtimeQuery, employeeID, day)

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	sched := period.DaySchedule{EmployeeID: employeeID, Date: date}

	var (
		startTime, endTime *string
		isoDays            []int32
	)
	err := results.QueryRow().Scan(&sched.Shift.ShiftCode, &sched.Shift.Name, &startTime, &endTime, &isoDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return period.DaySchedule{}, period.ErrScheduleNotFound
		}
		return period.DaySchedule{}, fmt.Errorf("failed to get shift: %w", err)
	}
	if startTime == nil || endTime == nil {
		return period.DaySchedule{}, period.ErrScheduleNotFound
	}
	sched.Shift.StartTime = *startTime
	sched.Shift.EndTime = *endTime
	for _, d := range isoDays {
		sched.Shift.WorkDays = append(sched.Shift.WorkDays, time.Weekday(d%7))
	}

	err = results.QueryRow().Scan(&sched.HolidayName)
	switch {
	case err == nil:
		sched.IsHoliday = true
	case !errors.Is(err, pgx.ErrNoRows):
		return period.DaySchedule{}, fmt.Errorf("failed to get holiday: %w", err)
	}

	rows, err := results.Query()
	if err != nil {
		return period.DaySchedule{}, fmt.Errorf("failed to get overtime: %w", err)
	}
	defer rows.Close()

	dayOff := sched.IsHoliday || !sched.Shift.WorksOn(date.Weekday())
	for rows.Next() {
		var ot period.OvertimeContext
		if err := rows.Scan(&ot.ID, &ot.StartTime, &ot.EndTime); err != nil {
			return period.DaySchedule{}, fmt.Errorf("failed to scan overtime: %w", err)
		}
		describeOvertime(&ot, sched.Shift, dayOff)
		sched.Overtimes = append(sched.Overtimes, ot)
	}
	if err := rows.Err(); err != nil {
		return period.DaySchedule{}, fmt.Errorf("failed to iterate overtime: %w", err)
	}

	return sched, nil
}

// describeOvertime fills the derived overtime fields. Times are "HH:MM:SS" as
// produced by to_char, so they compare lexically.
func describeOvertime(ot *period.OvertimeContext, shift period.ShiftData, dayOff bool) {
	ot.IsDayOffOvertime = dayOff

	start, errStart := time.Parse("15:04:05", ot.StartTime)
	end, errEnd := time.Parse("15:04:05", ot.EndTime)
	if errStart == nil && errEnd == nil {
		d := end.Sub(start)
		if d <= 0 {
			d += 24 * time.Hour
		}
		ot.DurationMinutes = int(d / time.Minute)
	}

	overnightShift := shift.EndTime < shift.StartTime
	if dayOff || overnightShift || ot.EndTime < ot.StartTime {
		return
	}
	ot.IsInsideShiftHours = ot.StartTime >= shift.StartTime && ot.EndTime <= shift.EndTime
}

func NewScheduleRepository(db *database.DB) period.ScheduleRepository {
	return &scheduleRepository{db: db}
}
