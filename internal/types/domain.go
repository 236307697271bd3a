package types

import "time"

// DefaultEnvironment is the environment name used when a check-in does not
// specify one.
const DefaultEnvironment = "production"

// Schedule describes when a monitor is expected to check in.
// Exactly one of Crontab or Interval applies, selected by Type.
type Schedule struct {
	Type    ScheduleType `json:"schedule_type"`
	Crontab string       `json:"crontab,omitempty"`

	// Interval schedule: "every IntervalCount IntervalUnit".
	IntervalCount int          `json:"interval_count,omitempty"`
	IntervalUnit  IntervalUnit `json:"interval_unit,omitempty"`
}

// MonitorConfig is the per-monitor schedule and margin settings blob.
// It is stored as JSONB alongside the monitor row.
type MonitorConfig struct {
	Schedule Schedule `json:"schedule"`

	// CheckinMargin is the grace period in minutes past next_checkin before
	// the monitor is considered missed by the sweeper.
	CheckinMargin int `json:"checkin_margin,omitempty"`

	// MaxRuntime is the maximum expected runtime in minutes for a single
	// execution, used when reasoning about stuck in_progress check-ins.
	MaxRuntime int `json:"max_runtime,omitempty"`
}

// Monitor is a registered recurring task whose liveness is tracked via
// check-ins. Status transitions are owned exclusively by the check-in state
// machine and the overdue sweeper; monitors are soft-deleted via status and
// never hard-deleted by this service.
type Monitor struct {
	ID             int64         `json:"-"`
	GUID           string        `json:"id"`
	OrganizationID int64         `json:"-"`
	ProjectID      int64         `json:"-"`
	Slug           string        `json:"slug"`
	Name           string        `json:"name"`
	Status         MonitorStatus `json:"status"`
	Config         MonitorConfig `json:"config"`

	// LastCheckin and NextCheckin are maintained under a compare-and-swap
	// discipline: they only ever advance for a fixed schedule.
	LastCheckin *time.Time `json:"lastCheckin"`
	NextCheckin *time.Time `json:"nextCheckin"`

	CreatedAt time.Time `json:"dateCreated"`
	UpdatedAt time.Time `json:"-"`
}

// MonitorEnvironment tracks monitor state per deployment environment.
// It exists iff at least one check-in has occurred for that
// (monitor, environment) pair, and is seeded from the monitor's state at
// creation time.
type MonitorEnvironment struct {
	ID            int64         `json:"-"`
	MonitorID     int64         `json:"-"`
	EnvironmentID int64         `json:"-"`
	Status        MonitorStatus `json:"status"`
	LastCheckin   *time.Time    `json:"lastCheckin"`
	NextCheckin   *time.Time    `json:"nextCheckin"`
}

// CheckIn is a single reported event for one execution of a monitor.
// Rows are append-only: a check-in is never updated after creation.
// DateAdded is the authoritative ordering key for state transitions.
type CheckIn struct {
	ID                   int64         `json:"-"`
	GUID                 string        `json:"id"`
	ProjectID            int64         `json:"-"`
	MonitorID            int64         `json:"-"`
	MonitorEnvironmentID int64         `json:"-"`
	Status               CheckInStatus `json:"status"`
	Duration             *int64        `json:"duration"`
	DateAdded            time.Time     `json:"dateCreated"`
}

// Environment is a lightweight name-to-id mapping scoped to a project,
// created on demand with get-or-create semantics.
type Environment struct {
	ID        int64  `json:"-"`
	ProjectID int64  `json:"-"`
	Name      string `json:"name"`
}

// ProjectFlags are one-time booleans tracked per project. Both flags are set
// permanently the first time their event occurs and drive the one-shot
// bootstrap signals.
type ProjectFlags struct {
	HasCronCheckins bool `json:"has_cron_checkins"`
	HasCronMonitors bool `json:"has_cron_monitors"`
}

// Project is the owning scope for monitors and environments. Project
// management is external to this service; only the identity and bootstrap
// flags are read and written here.
type Project struct {
	ID             int64        `json:"-"`
	OrganizationID int64        `json:"-"`
	Slug           string       `json:"slug"`
	Flags          ProjectFlags `json:"-"`
}

// MonitorStateUpdate is the conditional state change applied to a monitor or
// monitor-environment row after a non-error check-in. Nil fields are left
// unchanged. The update only applies when the stored last_checkin has not
// already advanced past LastCheckin.
type MonitorStateUpdate struct {
	LastCheckin time.Time
	NextCheckin *time.Time
	Status      *MonitorStatus
}
