package types

// MonitorStatus is the lifecycle state of a Monitor or a MonitorEnvironment.
//
// ACTIVE is the freshly-created state before any check-in has arrived. OK,
// ERROR, and TIMEOUT are derived from check-in outcomes. DISABLED is sticky:
// check-ins are still recorded while a monitor is disabled but never move it
// back to OK or ERROR. The two deletion states make a monitor logically gone;
// check-ins against it are rejected as not-found.
type MonitorStatus string

const (
	MonitorStatusActive             MonitorStatus = "active"
	MonitorStatusOK                 MonitorStatus = "ok"
	MonitorStatusError              MonitorStatus = "error"
	MonitorStatusTimeout            MonitorStatus = "timeout"
	MonitorStatusDisabled           MonitorStatus = "disabled"
	MonitorStatusPendingDeletion    MonitorStatus = "pending_deletion"
	MonitorStatusDeletionInProgress MonitorStatus = "deletion_in_progress"
)

// IsDeleting reports whether the monitor is in a soft-deletion state and
// should be treated as gone by the ingestion path.
func (s MonitorStatus) IsDeleting() bool {
	return s == MonitorStatusPendingDeletion || s == MonitorStatusDeletionInProgress
}

// CheckInStatus is the reported outcome of a single check-in event.
type CheckInStatus string

const (
	CheckInStatusInProgress CheckInStatus = "in_progress"
	CheckInStatusOK         CheckInStatus = "ok"
	CheckInStatusError      CheckInStatus = "error"
	CheckInStatusTimeout    CheckInStatus = "timeout"
	CheckInStatusMissed     CheckInStatus = "missed"
)

// userCheckInStatuses are the statuses a caller may submit. TIMEOUT and
// MISSED are system-derived and only ever written by the sweeper.
var userCheckInStatuses = map[CheckInStatus]bool{
	CheckInStatusInProgress: true,
	CheckInStatusOK:         true,
	CheckInStatusError:      true,
}

// ValidUserCheckInStatus reports whether s may be submitted by an external
// caller.
func ValidUserCheckInStatus(s CheckInStatus) bool {
	return userCheckInStatuses[s]
}

// ScheduleType selects how a monitor's expected cadence is expressed.
type ScheduleType string

const (
	// ScheduleTypeCrontab is a standard 5-field cron expression.
	ScheduleTypeCrontab ScheduleType = "crontab"
	// ScheduleTypeInterval is a fixed count of a calendar/clock unit.
	ScheduleTypeInterval ScheduleType = "interval"
)

// IntervalUnit is the unit for interval schedules.
type IntervalUnit string

const (
	IntervalUnitYear   IntervalUnit = "year"
	IntervalUnitMonth  IntervalUnit = "month"
	IntervalUnitWeek   IntervalUnit = "week"
	IntervalUnitDay    IntervalUnit = "day"
	IntervalUnitHour   IntervalUnit = "hour"
	IntervalUnitMinute IntervalUnit = "minute"
)

// ValidIntervalUnit reports whether u is a recognized interval unit.
func ValidIntervalUnit(u IntervalUnit) bool {
	switch u {
	case IntervalUnitYear, IntervalUnitMonth, IntervalUnitWeek,
		IntervalUnitDay, IntervalUnitHour, IntervalUnitMinute:
		return true
	}
	return false
}

// Outcome classifies the result of a check-in creation attempt.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeNotFound    Outcome = "not_found"
)
