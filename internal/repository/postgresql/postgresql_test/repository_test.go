package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/repository/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	companyID  string
	scheduleID string
	employeeID string
}

func newID() string { return uuid.Must(uuid.NewV7()).String() }

// seedOfficeEmployee creates an employee on a Monday to Friday 08:00-17:00 schedule.
func seedOfficeEmployee(t *testing.T, setup *TestDatabaseSetup) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{companyID: newID(), scheduleID: newID(), employeeID: newID()}

	_, err := setup.DB.Exec(ctx, `INSERT INTO work_schedules (id, company_id, name) VALUES ($1, $2, 'Office hours')`,
		f.scheduleID, f.companyID)
	require.NoError(t, err)
	for day := 1; day <= 5; day++ {
		_, err = setup.DB.Exec(ctx, `
			INSERT INTO work_schedule_times (id, work_schedule_id, day_of_week, clock_in_time, clock_out_time)
			VALUES ($1, $2, $3, '08:00', '17:00')`, newID(), f.scheduleID, day)
		require.NoError(t, err)
	}
	_, err = setup.DB.Exec(ctx, `INSERT INTO employees (id, company_id, work_schedule_id) VALUES ($1, $2, $3)`,
		f.employeeID, f.companyID, f.scheduleID)
	require.NoError(t, err)
	return f
}

func TestScheduleRepository_GetShiftAndOvertime(t *testing.T) {
	setup := NewTestDatabase(t)
	f := seedOfficeEmployee(t, setup)
	ctx := context.Background()
	repo := postgresql.NewScheduleRepository(setup.DB)

	monday := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	_, err := setup.DB.Exec(ctx, `
		INSERT INTO overtime_requests (id, employee_id, date, start_time, end_time, status)
		VALUES ($1, $2, $3, '17:00', '19:00', 'APPROVED'), ($4, $2, $3, '19:00', '21:00', 'PENDING')`,
		newID(), f.employeeID, monday, newID())
	require.NoError(t, err)

	sched, err := repo.GetShiftAndOvertime(ctx, f.employeeID, monday)
	require.NoError(t, err)
	assert.Equal(t, "08:00:00", sched.Shift.StartTime)
	assert.Equal(t, "17:00:00", sched.Shift.EndTime)
	assert.ElementsMatch(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, sched.Shift.WorkDays)
	assert.False(t, sched.IsHoliday)

	require.Len(t, sched.Overtimes, 1, "only approved overtime is returned")
	assert.Equal(t, "17:00:00", sched.Overtimes[0].StartTime)
	assert.Equal(t, 120, sched.Overtimes[0].DurationMinutes)
	assert.False(t, sched.Overtimes[0].IsDayOffOvertime)
}

func TestScheduleRepository_DayOffAndHoliday(t *testing.T) {
	setup := NewTestDatabase(t)
	f := seedOfficeEmployee(t, setup)
	ctx := context.Background()
	repo := postgresql.NewScheduleRepository(setup.DB)

	saturday := time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)
	_, err := setup.DB.Exec(ctx, `
		INSERT INTO overtime_requests (id, employee_id, date, start_time, end_time, status)
		VALUES ($1, $2, $3, '10:00', '14:00', 'APPROVED')`, newID(), f.employeeID, saturday)
	require.NoError(t, err)

	sched, err := repo.GetShiftAndOvertime(ctx, f.employeeID, saturday)
	require.NoError(t, err)
	assert.Equal(t, "08:00:00", sched.Shift.StartTime, "falls back to the first configured day")
	require.Len(t, sched.Overtimes, 1)
	assert.True(t, sched.Overtimes[0].IsDayOffOvertime)

	wednesday := time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC)
	_, err = setup.DB.Exec(ctx, `INSERT INTO holidays (id, company_id, date, name) VALUES ($1, $2, $3, 'Nyepi')`,
		newID(), f.companyID, wednesday)
	require.NoError(t, err)

	sched, err = repo.GetShiftAndOvertime(ctx, f.employeeID, wednesday)
	require.NoError(t, err)
	assert.True(t, sched.IsHoliday)
	assert.Equal(t, "Nyepi", sched.HolidayName)
}

func TestScheduleRepository_NotFound(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewScheduleRepository(setup.DB)

	_, err := repo.GetShiftAndOvertime(context.Background(), newID(), time.Now())
	assert.ErrorIs(t, err, period.ErrScheduleNotFound)
}

func TestAttendanceRepository_Lifecycle(t *testing.T) {
	setup := NewTestDatabase(t)
	f := seedOfficeEmployee(t, setup)
	ctx := context.Background()
	repo := postgresql.NewAttendanceRepository(setup.DB)
	tx := postgresql.NewTxManager(setup.DB)

	open, err := repo.GetOpenRecord(ctx, f.employeeID)
	require.NoError(t, err)
	assert.Nil(t, open)

	checkIn := time.Date(2024, time.March, 4, 1, 10, 0, 0, time.UTC)
	created, err := repo.RecordCheckIn(ctx, attendance.CheckInCommand{
		EmployeeID:  f.employeeID,
		Type:        period.TypeRegular,
		Date:        time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		Timestamp:   checkIn,
		LateMinutes: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatePresent, created.State)
	require.NotNil(t, created.LateMinutes)
	assert.Equal(t, 10, *created.LateMinutes)

	_, err = repo.RecordCheckIn(ctx, attendance.CheckInCommand{
		EmployeeID: f.employeeID,
		Type:       period.TypeRegular,
		Date:       created.Date,
		Timestamp:  checkIn.Add(time.Minute),
	})
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)

	openRecords, err := repo.ListOpenRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, openRecords, 1)

	var closed attendance.Record
	err = tx.WithinTransaction(ctx, func(ctx context.Context) error {
		rec, err := repo.GetOpenRecord(ctx, f.employeeID)
		if err != nil {
			return err
		}
		require.NotNil(t, rec)
		closed, err = repo.RecordCheckOut(ctx, attendance.CheckOutCommand{
			RecordID:      rec.ID,
			EmployeeID:    f.employeeID,
			Type:          rec.Type,
			Timestamp:     checkIn.Add(9 * time.Hour),
			AutoCompleted: true,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.StateAutoCompleted, closed.State)
	require.NotNil(t, closed.WorkMinutes)
	assert.Equal(t, 540, *closed.WorkMinutes)

	latest, err := repo.GetLatestRecord(ctx, f.employeeID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, closed.ID, latest.ID)

	_, err = repo.RecordCheckOut(ctx, attendance.CheckOutCommand{RecordID: closed.ID, EmployeeID: f.employeeID, Timestamp: checkIn})
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	setup := NewTestDatabase(t)
	f := seedOfficeEmployee(t, setup)
	ctx := context.Background()
	repo := postgresql.NewAttendanceRepository(setup.DB)

	err := postgresql.NewTxManager(setup.DB).WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := repo.RecordCheckIn(ctx, attendance.CheckInCommand{
			EmployeeID: f.employeeID,
			Type:       period.TypeRegular,
			Date:       time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
			Timestamp:  time.Date(2024, time.March, 4, 1, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		return attendance.ErrActionNotAllowed
	})
	assert.ErrorIs(t, err, attendance.ErrActionNotAllowed)

	open, err := repo.GetOpenRecord(ctx, f.employeeID)
	require.NoError(t, err)
	assert.Nil(t, open)
}
