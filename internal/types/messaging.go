package types

import "time"

// SignalName identifies a one-time bootstrap signal.
type SignalName string

const (
	// SignalFirstCheckinReceived fires once per project when the first cron
	// check-in ever is recorded.
	SignalFirstCheckinReceived SignalName = "first_cron_checkin_received"
	// SignalFirstMonitorCreated fires once per project; emitted as a
	// backfill when the first check-in arrives for a project whose
	// monitor-created flag was never set.
	SignalFirstMonitorCreated SignalName = "first_cron_monitor_created"
)

// Signal is the payload delivered to the signal emitter after a check-in
// transaction commits. TraceID correlates the signal with the request that
// produced it.
type Signal struct {
	Name        SignalName `json:"signal"`
	ProjectID   int64      `json:"project_id"`
	MonitorGUID string     `json:"monitor_guid,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
	TraceID     string     `json:"trace_id,omitempty"`
}
