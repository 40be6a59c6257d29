package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const recordColumns = `
	id, employee_id, date, period_type, overtime_request_id,
	clock_in, clock_out, status, overtime_status,
	late_minutes, work_minutes, note, created_at, updated_at`

type attendanceRepository struct {
	db *database.DB
}

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var (
		r             attendance.Record
		periodType    string
		status        string
		overtimeState string
	)
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Date, &periodType, &r.OvertimeID,
		&r.CheckInTime, &r.CheckOutTime, &status, &overtimeState,
		&r.LateMinutes, &r.WorkMinutes, &r.Note, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return attendance.Record{}, err
	}
	r.Type = period.Type(periodType)
	r.State = attendance.State(status)
	r.OvertimeState = attendance.OvertimeState(overtimeState)
	return r, nil
}

func (a *attendanceRepository) getOne(ctx context.Context, query string, args ...any) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)
	r, err := scanRecord(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetOpenRecord implements attendance.AttendanceRepository. Inside a transaction the
// row is locked until commit.
func (a *attendanceRepository) GetOpenRecord(ctx context.Context, employeeID string) (*attendance.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendances
		WHERE employee_id = $1
		  AND clock_in IS NOT NULL
		  AND clock_out IS NULL
		ORDER BY clock_in DESC
		LIMIT 1`
	if inTransaction(ctx) {
		query += ` FOR UPDATE`
	}

	r, err := a.getOne(ctx, query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open record: %w", err)
	}
	return r, nil
}

// GetLatestRecord implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetLatestRecord(ctx context.Context, employeeID string) (*attendance.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendances
		WHERE employee_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	r, err := a.getOne(ctx, query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return r, nil
}

// RecordCheckIn implements attendance.AttendanceRepository.
func (a *attendanceRepository) RecordCheckIn(ctx context.Context, cmd attendance.CheckInCommand) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	overtimeState := attendance.OvertimeStateNone
	if cmd.Type == period.TypeOvertime {
		overtimeState = attendance.OvertimeStateInProgress
	}
	var lateMinutes *int
	if cmd.LateMinutes > 0 {
		lateMinutes = &cmd.LateMinutes
	}

	query := `
		INSERT INTO attendances (
			employee_id, date, period_type, overtime_request_id,
			clock_in, status, overtime_status, late_minutes
		) VALUES (
			$1, $2::date, $3, $4, $5, $6, $7, $8
		) RETURNING ` + recordColumns

	r, err := scanRecord(q.QueryRow(ctx, query,
		cmd.EmployeeID,
		cmd.Date.Format("2006-01-02"),
		string(cmd.Type),
		cmd.OvertimeID,
		cmd.Timestamp,
		string(attendance.StatePresent),
		string(overtimeState),
		lateMinutes,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return attendance.Record{}, attendance.ErrAlreadyCheckedIn
		}
		return attendance.Record{}, fmt.Errorf("failed to insert check-in: %w", err)
	}
	return r, nil
}

// RecordCheckOut implements attendance.AttendanceRepository. Only an open record can be closed.
func (a *attendanceRepository) RecordCheckOut(ctx context.Context, cmd attendance.CheckOutCommand) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	status := attendance.StateCheckedOut
	if cmd.AutoCompleted {
		status = attendance.StateAutoCompleted
	}

	query := `
		UPDATE attendances SET
			clock_out = $3,
			status = $4,
			overtime_status = CASE WHEN period_type = 'OVERTIME' THEN 'COMPLETED' ELSE overtime_status END,
			work_minutes = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($3 - clock_in)) / 60))::int,
			note = COALESCE($5, note),
			updated_at = NOW()
		WHERE id = $1
		  AND employee_id = $2
		  AND clock_out IS NULL
		RETURNING ` + recordColumns

	r, err := scanRecord(q.QueryRow(ctx, query,
		cmd.RecordID,
		cmd.EmployeeID,
		cmd.Timestamp,
		string(status),
		cmd.Note,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Record{}, attendance.ErrRecordNotFound
		}
		return attendance.Record{}, fmt.Errorf("failed to update check-out: %w", err)
	}
	return r, nil
}

// ListOpenRecords implements attendance.AttendanceRepository. Oldest check-ins come first.
func (a *attendanceRepository) ListOpenRecords(ctx context.Context, limit int) ([]attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + recordColumns + `
		FROM attendances
		WHERE clock_in IS NOT NULL
		  AND clock_out IS NULL
		ORDER BY clock_in ASC
		LIMIT $1`

	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open records: %w", err)
	}
	return records, nil
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepository{db: db}
}
