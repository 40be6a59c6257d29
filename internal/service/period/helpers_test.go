package period

import (
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-engine/internal/domain/period"
	"github.com/stretchr/testify/require"
)

const testEmployeeID = "0190a1b2-7c3d-7e4f-8a9b-0c1d2e3f4a5b"

var everyDay = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

var loadJakarta = sync.OnceValues(func() (*time.Location, error) {
	return time.LoadLocation("Asia/Jakarta")
})

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := loadJakarta()
	require.NoError(t, err)
	return loc
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Location = jakarta(t)
	return cfg
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(testConfig(t), nil)
}

// at builds a wall-clock instant on 2024-03-04 (a Monday) plus dayOffset days.
func at(t *testing.T, dayOffset, hour, minute int) time.Time {
	t.Helper()
	return time.Date(2024, time.March, 4+dayOffset, hour, minute, 0, 0, jakarta(t))
}

func officeSchedule(overtimes ...period.OvertimeContext) period.DaySchedule {
	return period.DaySchedule{
		EmployeeID: testEmployeeID,
		Shift: period.ShiftData{
			ShiftCode: "OFFICE",
			Name:      "Office hours",
			StartTime: "08:00",
			EndTime:   "17:00",
			WorkDays:  everyDay,
		},
		Overtimes: overtimes,
	}
}

func nightSchedule() period.DaySchedule {
	return period.DaySchedule{
		EmployeeID: testEmployeeID,
		Shift: period.ShiftData{
			ShiftCode: "NIGHT",
			Name:      "Night shift",
			StartTime: "22:00",
			EndTime:   "06:00",
			WorkDays:  everyDay,
		},
	}
}

func openRecord(t period.Type, checkIn time.Time) *attendance.Record {
	in := checkIn
	return &attendance.Record{
		ID:          "0190a1b2-7c3d-7e4f-8a9b-000000000001",
		EmployeeID:  testEmployeeID,
		Type:        t,
		CheckInTime: &in,
		State:       attendance.StatePresent,
	}
}
