// Package schedule computes the next expected check-in time for a monitor.
//
// The calculator is a pure function over a schedule spec and a reference
// instant: no I/O, no shared state, safe to call concurrently. Schedules are
// validated at monitor-creation time by the management flow, but every entry
// point here re-validates defensively and returns a typed error on malformed
// specs.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"cronwatch/internal/types"
)

// cronParser accepts standard 5-field cron expressions (minute, hour,
// day-of-month, month, day-of-week). Descriptors like @hourly are rejected;
// monitors store explicit expressions only.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate checks that the schedule spec is well formed. It returns a
// validation AppError naming the defect, or nil.
func Validate(s types.Schedule) error {
	switch s.Type {
	case types.ScheduleTypeCrontab:
		if s.Crontab == "" {
			return types.NewAppError(types.ErrCodeValidationInvalidSchedule,
				"crontab schedule requires an expression", nil)
		}
		if _, err := cronParser.Parse(s.Crontab); err != nil {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidSchedule,
				"invalid cron expression", err,
				map[string]any{"crontab": s.Crontab})
		}
		return nil
	case types.ScheduleTypeInterval:
		if s.IntervalCount < 1 {
			return types.NewAppError(types.ErrCodeValidationInvalidSchedule,
				"interval schedule requires a positive count", nil)
		}
		if !types.ValidIntervalUnit(s.IntervalUnit) {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidSchedule,
				"unknown interval unit", nil,
				map[string]any{"interval_unit": string(s.IntervalUnit)})
		}
		return nil
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidSchedule,
			"unknown schedule type", nil,
			map[string]any{"schedule_type": string(s.Type)})
	}
}

// NextCheckin returns the next instant strictly after ref that satisfies the
// schedule. All computation is done in UTC; monitors store timezone-naive
// UTC instants.
func NextCheckin(s types.Schedule, ref time.Time) (time.Time, error) {
	ref = ref.UTC()

	switch s.Type {
	case types.ScheduleTypeCrontab:
		sched, err := cronParser.Parse(s.Crontab)
		if err != nil {
			return time.Time{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidSchedule,
				"invalid cron expression", err,
				map[string]any{"crontab": s.Crontab})
		}
		next := sched.Next(ref)
		if next.IsZero() {
			return time.Time{}, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidSchedule,
				"cron expression has no future activation", nil,
				map[string]any{"crontab": s.Crontab})
		}
		return next.UTC(), nil

	case types.ScheduleTypeInterval:
		if err := Validate(s); err != nil {
			return time.Time{}, err
		}
		return addInterval(ref, s.IntervalCount, s.IntervalUnit), nil

	default:
		return time.Time{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidSchedule,
			"unknown schedule type", nil,
			map[string]any{"schedule_type": string(s.Type)})
	}
}

// NextCheckinFor is a convenience wrapper over a monitor config.
func NextCheckinFor(cfg types.MonitorConfig, ref time.Time) (time.Time, error) {
	return NextCheckin(cfg.Schedule, ref)
}

// addInterval advances ref by count units. Calendar units (year, month) use
// AddDate so month-length and leap-year arithmetic follow the calendar;
// clock units are plain duration addition.
func addInterval(ref time.Time, count int, unit types.IntervalUnit) time.Time {
	switch unit {
	case types.IntervalUnitYear:
		return ref.AddDate(count, 0, 0)
	case types.IntervalUnitMonth:
		return ref.AddDate(0, count, 0)
	case types.IntervalUnitWeek:
		return ref.AddDate(0, 0, 7*count)
	case types.IntervalUnitDay:
		return ref.AddDate(0, 0, count)
	case types.IntervalUnitHour:
		return ref.Add(time.Duration(count) * time.Hour)
	case types.IntervalUnitMinute:
		return ref.Add(time.Duration(count) * time.Minute)
	default:
		// Unreachable after Validate; kept so the function is total.
		panic(fmt.Sprintf("schedule: unknown interval unit %q", unit))
	}
}
