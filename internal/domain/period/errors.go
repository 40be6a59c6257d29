package period

import "errors"

// Period domain errors
var (
	ErrScheduleNotFound  = errors.New("no schedule configured for employee on this date")
	ErrInvalidTimeWindow = errors.New("invalid time-of-day window")

	// ErrStaleCacheRead is recovered by recomputation and never returned to callers.
	ErrStaleCacheRead = errors.New("cached period state no longer covers now")
)
