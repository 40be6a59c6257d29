package attendance

import (
	"context"
	"time"
)

type AttendanceService interface {
	// CheckIn and CheckOut enqueue the intent and return without waiting for it to be processed.
	CheckIn(ctx context.Context, req CheckInRequest) (EnqueueResponse, error)
	CheckOut(ctx context.Context, req CheckOutRequest) (EnqueueResponse, error)

	// WaitForRequest blocks until the request settles or ctx ends.
	WaitForRequest(ctx context.Context, requestID string) (RequestStatusResponse, error)

	GetRequestStatus(ctx context.Context, requestID string) (RequestStatusResponse, error)

	// GetStatus never fails. Resolution problems degrade to a not-allowed snapshot.
	GetStatus(ctx context.Context, employeeID string) StatusSnapshot

	// GetDayPeriods returns the period sequence of one civil date.
	GetDayPeriods(ctx context.Context, employeeID string, date time.Time) (DayPeriodsResponse, error)

	// AutoCompleteOpenRecords enqueues auto-completion for every open record that needs it.
	AutoCompleteOpenRecords(ctx context.Context) (int, error)
}
