package period

import (
	"time"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
)

// Config holds the business thresholds of the period engine.
type Config struct {
	// Location is the civil time zone every window is built in.
	Location *time.Location

	EarlyCheckIn         time.Duration
	OvertimeEarlyCheckIn time.Duration
	LateCheckIn          time.Duration
	LateCheckOut         time.Duration
	VeryLateCheckOut     time.Duration

	TransitionLookahead time.Duration
	TransitionGrace     time.Duration

	// RelevanceLookback widens each period backwards when picking the relevant one.
	RelevanceLookback time.Duration

	StateCacheTTL    time.Duration
	CacheGranularity time.Duration
}

func DefaultConfig() Config {
	return Config{
		Location:             time.UTC,
		EarlyCheckIn:         30 * time.Minute,
		OvertimeEarlyCheckIn: 15 * time.Minute,
		LateCheckIn:          15 * time.Minute,
		LateCheckOut:         15 * time.Minute,
		VeryLateCheckOut:     60 * time.Minute,
		TransitionLookahead:  5 * time.Minute,
		TransitionGrace:      15 * time.Minute,
		RelevanceLookback:    30 * time.Minute,
		StateCacheTTL:        30 * time.Second,
		CacheGranularity:     time.Minute,
	}
}

// EarlyBuffer returns how long before its start a period accepts check-in.
func (c Config) EarlyBuffer(t period.Type) time.Duration {
	if t == period.TypeOvertime {
		return c.OvertimeEarlyCheckIn
	}
	return c.EarlyCheckIn
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
