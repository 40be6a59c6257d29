package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
)

// Process is the queue worker's processing function. The decision is taken at
// processing time against the current open record, inside one transaction.
func (s *AttendanceServiceImpl) Process(ctx context.Context, task queue.Task) (*attendance.Outcome, error) {
	intent := task.Intent
	if !intent.Action.IsValid() {
		return nil, fmt.Errorf("%w: %q", attendance.ErrInvalidAction, intent.Action)
	}

	var outcome *attendance.Outcome
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		record, err := s.AttendanceRepository.GetOpenRecord(ctx, task.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to get open record: %w", err)
		}

		ev, anchor, err := s.evaluate(ctx, task.EmployeeID, record, now)
		if err != nil {
			return err
		}

		switch intent.Action {
		case attendance.ActionCheckIn:
			outcome, err = s.checkIn(ctx, task, record, ev, anchor, now)
		case attendance.ActionCheckOut:
			outcome, err = s.checkOut(ctx, task, record, ev, now)
		case attendance.ActionAutoComplete:
			outcome, err = s.autoComplete(ctx, task, record, ev)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if outcome.Record != nil {
		s.resolver.Invalidate(task.EmployeeID)
		if err := s.bridge.Invalidate(context.WithoutCancel(ctx), task.EmployeeID); err != nil {
			s.logger.Warn("Failed to invalidate cached status", "employee_id", task.EmployeeID, "error", err)
		}
	}
	return outcome, nil
}

func (s *AttendanceServiceImpl) checkIn(ctx context.Context, task queue.Task, record *attendance.Record, ev period.Evaluation, anchor, now time.Time) (*attendance.Outcome, error) {
	if record.IsOpen() {
		return nil, attendance.ErrAlreadyCheckedIn
	}
	if !ev.Validation.Allowed {
		return nil, fmt.Errorf("%w: %s", attendance.ErrActionNotAllowed, ev.Validation.Reason)
	}

	cmd := attendance.CheckInCommand{
		EmployeeID: task.EmployeeID,
		Type:       ev.State.Type,
		Date:       anchor,
		Timestamp:  now,
	}
	if ev.Current != nil && ev.Current.Overtime != nil {
		id := ev.Current.Overtime.ID
		cmd.OvertimeID = &id
	}
	if ev.Validation.Flags.IsLateCheckIn {
		cmd.LateMinutes = ev.Validation.Metadata.MinutesLate
	}

	created, err := s.AttendanceRepository.RecordCheckIn(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}

	s.logger.Info("Employee checked in",
		"employee_id", task.EmployeeID,
		"request_id", task.RequestID,
		"period_type", cmd.Type,
		"late_minutes", cmd.LateMinutes,
	)
	return &attendance.Outcome{
		Action:  attendance.ActionCheckIn,
		Record:  &created,
		Message: ev.Validation.Reason,
	}, nil
}

func (s *AttendanceServiceImpl) checkOut(ctx context.Context, task queue.Task, record *attendance.Record, ev period.Evaluation, now time.Time) (*attendance.Outcome, error) {
	if !record.IsOpen() {
		return nil, attendance.ErrNotCheckedIn
	}
	if !ev.Validation.Allowed {
		if ev.Validation.Flags.RequiresAutoCompletion {
			return s.closeAtScheduledEnd(ctx, task, record, ev)
		}
		return nil, fmt.Errorf("%w: %s", attendance.ErrActionNotAllowed, ev.Validation.Reason)
	}

	cmd := attendance.CheckOutCommand{
		RecordID:   record.ID,
		EmployeeID: task.EmployeeID,
		Type:       record.Type,
		Timestamp:  now,
	}
	if task.Intent.Note != "" {
		note := task.Intent.Note
		cmd.Note = &note
	}

	updated, err := s.AttendanceRepository.RecordCheckOut(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to record check-out: %w", err)
	}

	s.logger.Info("Employee checked out",
		"employee_id", task.EmployeeID,
		"request_id", task.RequestID,
		"period_type", record.Type,
		"emergency_leave", ev.Validation.Flags.IsEmergencyLeave,
	)
	return &attendance.Outcome{
		Action:  attendance.ActionCheckOut,
		Record:  &updated,
		Message: ev.Validation.Reason,
	}, nil
}

// autoComplete handles intents enqueued by the sweep. By the time they run the
// record may already be closed or no longer overdue; both are no-ops.
func (s *AttendanceServiceImpl) autoComplete(ctx context.Context, task queue.Task, record *attendance.Record, ev period.Evaluation) (*attendance.Outcome, error) {
	if !record.IsOpen() {
		return &attendance.Outcome{Action: attendance.ActionAutoComplete, Message: "No open record to complete"}, nil
	}
	if !ev.Validation.Flags.RequiresAutoCompletion {
		return &attendance.Outcome{Action: attendance.ActionAutoComplete, Message: "Auto-completion is no longer required"}, nil
	}
	return s.closeAtScheduledEnd(ctx, task, record, ev)
}

// closeAtScheduledEnd closes a forgotten record at the end of its period, never
// earlier than its check-in.
func (s *AttendanceServiceImpl) closeAtScheduledEnd(ctx context.Context, task queue.Task, record *attendance.Record, ev period.Evaluation) (*attendance.Outcome, error) {
	at := ev.State.TimeWindow.End
	if record.CheckInTime != nil && at.Before(*record.CheckInTime) {
		at = *record.CheckInTime
	}
	note := "Automatically completed at the scheduled end"

	updated, err := s.AttendanceRepository.RecordCheckOut(ctx, attendance.CheckOutCommand{
		RecordID:      record.ID,
		EmployeeID:    task.EmployeeID,
		Type:          record.Type,
		Timestamp:     at,
		AutoCompleted: true,
		Note:          &note,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to auto-complete record: %w", err)
	}

	s.logger.Warn("Open record auto-completed",
		"employee_id", task.EmployeeID,
		"record_id", record.ID,
		"request_id", task.RequestID,
		"closed_at", at,
	)
	return &attendance.Outcome{
		Action:        task.Intent.Action,
		Record:        &updated,
		AutoCompleted: true,
		Message:       ev.Validation.Reason,
	}, nil
}
