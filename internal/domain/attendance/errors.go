package attendance

import "errors"

// Attendance domain errors
var (
	ErrAlreadyCheckedIn = errors.New("you have already checked in")
	ErrNotCheckedIn     = errors.New("you have not checked in yet")
	ErrActionNotAllowed = errors.New("attendance action is not allowed right now")

	ErrRecordNotFound    = errors.New("attendance record not found")
	ErrInvalidAction     = errors.New("invalid attendance action")
	ErrRequestIDRequired = errors.New("request id is required")
)
