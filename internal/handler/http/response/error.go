package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/queue"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth errors
	case errors.Is(err, jwt.ErrNoEmployee):
		Forbidden(w, "Token is not bound to an employee")

	// Queue errors
	case errors.Is(err, queue.ErrQueueFull):
		ServiceUnavailable(w, "Attendance queue is full, please retry shortly")
	case errors.Is(err, queue.ErrQueueClosed):
		ServiceUnavailable(w, "Attendance queue is shutting down")

	// Attendance domain errors
	case errors.Is(err, attendance.ErrRequestIDRequired):
		BadRequest(w, "Request id is required", nil)
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		Conflict(w, "You have already checked in")
	case errors.Is(err, attendance.ErrNotCheckedIn):
		Conflict(w, "You have not checked in yet")
	case errors.Is(err, attendance.ErrActionNotAllowed):
		Conflict(w, err.Error())
	case errors.Is(err, attendance.ErrRecordNotFound):
		NotFound(w, "Attendance record not found")

	// Period domain errors
	case errors.Is(err, period.ErrScheduleNotFound):
		NotFound(w, "No work schedule is assigned for this date")
	case errors.Is(err, period.ErrInvalidTimeWindow):
		UnprocessableEntity(w, "The work schedule is misconfigured")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
