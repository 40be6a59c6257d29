package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/clock"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/validator"
	periodsvc "github.com/cmlabs-hris/hris-attendance-engine/internal/service/period"
	queuesvc "github.com/cmlabs-hris/hris-attendance-engine/internal/service/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/service/statuscache"
)

type Config struct {
	Queue queuesvc.Config
	// StalledThreshold is how long a task may stay processing before pollers re-check
	// the attendance store.
	StalledThreshold time.Duration
	// AutoCompleteBatch caps how many open records one sweep evaluates.
	AutoCompleteBatch int
}

func DefaultConfig() Config {
	return Config{
		Queue:             queuesvc.DefaultConfig(),
		StalledThreshold:  15 * time.Second,
		AutoCompleteBatch: 500,
	}
}

type AttendanceServiceImpl struct {
	attendance.AttendanceRepository
	period.ScheduleRepository
	tx attendance.Transactor

	cfg      Config
	resolver *periodsvc.Resolver
	bridge   *statuscache.Bridge
	queue    *queuesvc.ProcessingQueue
	clock    clock.Clock
	logger   *slog.Logger
}

var _ attendance.AttendanceService = (*AttendanceServiceImpl)(nil)

func NewAttendanceService(
	attendanceRepo attendance.AttendanceRepository,
	scheduleRepo period.ScheduleRepository,
	tx attendance.Transactor,
	resolver *periodsvc.Resolver,
	bridge *statuscache.Bridge,
	cfg Config,
	clk clock.Clock,
	logger *slog.Logger,
) *AttendanceServiceImpl {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AutoCompleteBatch <= 0 {
		cfg.AutoCompleteBatch = DefaultConfig().AutoCompleteBatch
	}

	s := &AttendanceServiceImpl{
		AttendanceRepository: attendanceRepo,
		ScheduleRepository:   scheduleRepo,
		tx:                   tx,
		cfg:                  cfg,
		resolver:             resolver,
		bridge:               bridge,
		clock:                clk,
		logger:               logger,
	}
	s.queue = queuesvc.NewProcessingQueue(cfg.Queue, s.Process, bridge.RequestMirror(cfg.Queue.Retention), clk, logger)
	return s
}

// Queue exposes the processing queue for lifecycle management and the sweep job.
func (s *AttendanceServiceImpl) Queue() *queuesvc.ProcessingQueue {
	return s.queue
}

// CheckIn implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) CheckIn(ctx context.Context, req attendance.CheckInRequest) (attendance.EnqueueResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.EnqueueResponse{}, err
	}
	return s.enqueue(ctx, attendance.ActionCheckIn, req.EmployeeID, req.Note)
}

// CheckOut implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) CheckOut(ctx context.Context, req attendance.CheckOutRequest) (attendance.EnqueueResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.EnqueueResponse{}, err
	}
	return s.enqueue(ctx, attendance.ActionCheckOut, req.EmployeeID, req.Note)
}

func (s *AttendanceServiceImpl) enqueue(ctx context.Context, action attendance.Action, employeeID, note string) (attendance.EnqueueResponse, error) {
	ticket, err := s.queue.Enqueue(ctx, queue.Task{
		EmployeeID: employeeID,
		Intent: attendance.Intent{
			Action:      action,
			EmployeeID:  employeeID,
			RequestedAt: s.clock.Now(),
			Note:        note,
		},
	})
	if err != nil {
		return attendance.EnqueueResponse{}, fmt.Errorf("failed to enqueue %s: %w", action, err)
	}
	return attendance.EnqueueResponse{
		RequestID:  ticket.RequestID,
		Status:     string(queue.StatusPending),
		EnqueuedAt: ticket.EnqueuedAt,
	}, nil
}

// WaitForRequest implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) WaitForRequest(ctx context.Context, requestID string) (attendance.RequestStatusResponse, error) {
	if err := validateRequestID(requestID); err != nil {
		return attendance.RequestStatusResponse{}, err
	}
	if ticket, ok := s.queue.Await(requestID); ok {
		if _, err := ticket.Wait(ctx); err != nil {
			s.logger.Debug("Stopped waiting for request", "request_id", requestID, "error", err)
		}
	}
	return s.GetRequestStatus(context.WithoutCancel(ctx), requestID)
}

// GetRequestStatus implements attendance.AttendanceService. A task stuck in processing
// past the stalled threshold is checked against the attendance store and reported
// completed when its mutation is found there.
func (s *AttendanceServiceImpl) GetRequestStatus(ctx context.Context, requestID string) (attendance.RequestStatusResponse, error) {
	if err := validateRequestID(requestID); err != nil {
		return attendance.RequestStatusResponse{}, err
	}

	status := s.queue.GetRequestStatus(ctx, requestID)
	if queuesvc.IsStalled(status, s.clock.Now(), s.cfg.StalledThreshold) {
		outcome, landed, err := s.mutationLanded(ctx, status)
		if err != nil {
			s.logger.Warn("Failed to check stalled request", "request_id", requestID, "error", err)
		} else if landed {
			status, _ = s.queue.RepairCompleted(ctx, requestID, outcome)
		}
	}
	return toStatusResponse(status), nil
}

func validateRequestID(requestID string) error {
	if validator.IsEmpty(requestID) {
		return attendance.ErrRequestIDRequired
	}
	if !validator.IsValidUUID(requestID) {
		return validator.ValidationErrors{{Field: "request_id", Message: "request_id must be a valid UUIDv7"}}
	}
	return nil
}

// mutationLanded looks for the record change a stalled task was supposed to make.
func (s *AttendanceServiceImpl) mutationLanded(ctx context.Context, status queue.TaskStatus) (*attendance.Outcome, bool, error) {
	record, err := s.AttendanceRepository.GetLatestRecord(ctx, status.EmployeeID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get latest record: %w", err)
	}
	if record == nil {
		return nil, false, nil
	}

	var landed bool
	switch status.Action {
	case attendance.ActionCheckIn:
		landed = record.CheckInTime != nil && !record.CheckInTime.Before(status.EnqueuedAt)
	case attendance.ActionCheckOut, attendance.ActionAutoComplete:
		landed = record.CheckOutTime != nil && !record.UpdatedAt.Before(status.EnqueuedAt)
	}
	if !landed {
		return nil, false, nil
	}
	return &attendance.Outcome{
		Action:        status.Action,
		Record:        record,
		AutoCompleted: record.State == attendance.StateAutoCompleted,
		Message:       "Recovered from the attendance store",
	}, true, nil
}

func toStatusResponse(status queue.TaskStatus) attendance.RequestStatusResponse {
	return attendance.RequestStatusResponse{
		RequestID: status.RequestID,
		Status:    string(status.Status),
		Completed: status.Completed,
		Data:      status.Data,
		Error:     status.Error,
		Timestamp: status.Timestamp,
		Repaired:  status.Repaired,
	}
}

// GetStatus implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetStatus(ctx context.Context, employeeID string) attendance.StatusSnapshot {
	snapshot, err := s.bridge.Get(ctx, employeeID, func(ctx context.Context) (attendance.StatusSnapshot, error) {
		return s.computeStatus(ctx, employeeID)
	})
	if err != nil {
		s.logger.Warn("Attendance status unavailable", "employee_id", employeeID, "error", err)
		return s.unavailableStatus(employeeID, err)
	}
	return snapshot
}

func (s *AttendanceServiceImpl) computeStatus(ctx context.Context, employeeID string) (attendance.StatusSnapshot, error) {
	now := s.clock.Now()

	record, err := s.AttendanceRepository.GetOpenRecord(ctx, employeeID)
	if err != nil {
		return attendance.StatusSnapshot{}, fmt.Errorf("failed to get open record: %w", err)
	}

	ev, _, err := s.evaluate(ctx, employeeID, record, now)
	if err != nil {
		return attendance.StatusSnapshot{}, err
	}

	return attendance.StatusSnapshot{
		EmployeeID: employeeID,
		State:      ev.State,
		Validation: ev.Validation,
		OpenRecord: record,
		Degraded:   ev.Degraded,
		ComputedAt: now,
	}, nil
}

func (s *AttendanceServiceImpl) unavailableStatus(employeeID string, err error) attendance.StatusSnapshot {
	now := s.clock.Now()
	v := period.StateValidation{
		Code:     period.ReasonUnavailable,
		Reason:   "Attendance status is temporarily unavailable",
		Metadata: period.ValidationMetadata{EvaluatedAt: now},
	}
	switch {
	case errors.Is(err, period.ErrScheduleNotFound):
		v.Code = period.ReasonScheduleMissing
		v.Reason = "No work schedule is assigned for today"
	case errors.Is(err, period.ErrInvalidTimeWindow):
		v.Reason = "The work schedule for today is misconfigured"
	}
	return attendance.StatusSnapshot{
		EmployeeID: employeeID,
		Validation: v,
		Degraded:   true,
		ComputedAt: now,
	}
}

// GetDayPeriods implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetDayPeriods(ctx context.Context, employeeID string, date time.Time) (attendance.DayPeriodsResponse, error) {
	y, m, d := date.Date()
	anchor := time.Date(y, m, d, 0, 0, 0, 0, s.resolver.Windows().Location())

	schedule, err := s.loadSchedule(ctx, employeeID, anchor)
	if err != nil {
		return attendance.DayPeriodsResponse{}, err
	}
	schedule.Date = anchor

	periods, err := s.resolver.Periods().BuildPeriods(schedule, anchor)
	if err != nil {
		return attendance.DayPeriodsResponse{}, fmt.Errorf("failed to build periods: %w", err)
	}
	return attendance.DayPeriodsResponse{
		Date:        anchor.Format("2006-01-02"),
		IsHoliday:   schedule.IsHoliday,
		HolidayName: schedule.HolidayName,
		Periods:     periods,
	}, nil
}

// AutoCompleteOpenRecords implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) AutoCompleteOpenRecords(ctx context.Context) (int, error) {
	records, err := s.AttendanceRepository.ListOpenRecords(ctx, s.cfg.AutoCompleteBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list open records: %w", err)
	}

	now := s.clock.Now()
	enqueued := 0
	for i := range records {
		record := &records[i]
		ev, _, err := s.evaluate(ctx, record.EmployeeID, record, now)
		if err != nil {
			s.logger.Warn("Skipping open record", "record_id", record.ID, "employee_id", record.EmployeeID, "error", err)
			continue
		}
		if !ev.Validation.Flags.RequiresAutoCompletion {
			continue
		}

		if _, err := s.enqueue(ctx, attendance.ActionAutoComplete, record.EmployeeID, ""); err != nil {
			if errors.Is(err, queue.ErrQueueFull) {
				return enqueued, err
			}
			s.logger.Error("Failed to enqueue auto-completion", "record_id", record.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("Auto-completion enqueued", "count", enqueued, "open_records", len(records))
	}
	return enqueued, nil
}

// evaluate loads the schedule that governs now for the employee and runs the resolver.
// It returns the evaluation and the anchor date the schedule was loaded for.
func (s *AttendanceServiceImpl) evaluate(ctx context.Context, employeeID string, record *attendance.Record, now time.Time) (period.Evaluation, time.Time, error) {
	windows := s.resolver.Windows()
	today := windows.CivilDate(now)

	var (
		schedule period.DaySchedule
		anchor   time.Time
		err      error
	)
	if record.IsOpen() {
		anchor, err = s.resolver.AnchorDate(period.ShiftData{}, record, now)
		if err != nil {
			return period.Evaluation{}, time.Time{}, err
		}
		schedule, err = s.loadSchedule(ctx, employeeID, anchor)
	} else {
		schedule, err = s.loadSchedule(ctx, employeeID, today)
		if err == nil {
			anchor, err = s.resolver.AnchorDate(schedule.Shift, nil, now)
		}
		if err == nil && !anchor.Equal(today) {
			schedule, err = s.loadSchedule(ctx, employeeID, anchor)
		}
	}
	if err != nil {
		return period.Evaluation{}, time.Time{}, err
	}
	schedule.Date = anchor

	ev, err := s.resolver.Evaluate(employeeID, record, schedule, now)
	if err != nil {
		return period.Evaluation{}, time.Time{}, fmt.Errorf("failed to resolve period: %w", err)
	}
	return ev, anchor, nil
}

func (s *AttendanceServiceImpl) loadSchedule(ctx context.Context, employeeID string, date time.Time) (period.DaySchedule, error) {
	schedule, err := s.ScheduleRepository.GetShiftAndOvertime(ctx, employeeID, date)
	if err != nil {
		if errors.Is(err, period.ErrScheduleNotFound) {
			return period.DaySchedule{}, err
		}
		return period.DaySchedule{}, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}
