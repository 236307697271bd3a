// Package checkin implements the check-in ingestion core: admission
// control, durable recording, monitor state transitions, and the one-time
// bootstrap signals. The HTTP layer resolves an authorized
// (project, monitor) pair and hands it to the Recorder; everything the
// Recorder writes happens inside a single database transaction so rejected
// or failed requests never leave partial rows behind.
package checkin

import (
	"context"
	"time"

	"cronwatch/internal/types"
)

// MonitorStore is the data access contract the state machine needs.
// MarkFailed/MarkEnvFailed and the conditional updates are atomic
// compare-and-swap writes: they apply only when the stored last_checkin has
// not advanced past the incoming timestamp, and report whether they took
// effect.
type MonitorStore interface {
	MarkFailed(ctx context.Context, monitorID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error)
	UpdateStateIfFresh(ctx context.Context, monitorID int64, upd types.MonitorStateUpdate) (bool, error)
	MarkEnvFailed(ctx context.Context, monitorEnvID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error)
	UpdateEnvStateIfFresh(ctx context.Context, monitorEnvID int64, upd types.MonitorStateUpdate) (bool, error)
	GetOrCreateMonitorEnvironment(ctx context.Context, monitor *types.Monitor, environmentID int64) (*types.MonitorEnvironment, bool, error)
}

// EnvironmentStore resolves environment names to rows with get-or-create
// semantics.
type EnvironmentStore interface {
	GetOrCreate(ctx context.Context, projectID int64, name string) (*types.Environment, error)
}

// CheckInStore persists check-in rows.
type CheckInStore interface {
	Create(ctx context.Context, c *types.CheckIn) error
}

// ProjectStore maintains the one-time bootstrap flags. The TrySet methods
// return true for exactly one caller per project (the false-to-true
// transition winner).
type ProjectStore interface {
	TrySetCronCheckinsFlag(ctx context.Context, projectID int64) (bool, error)
	TrySetCronMonitorsFlag(ctx context.Context, projectID int64) (bool, error)
}

// Repos bundles the transaction-scoped stores handed to the recorder's
// transactional callback.
type Repos interface {
	Monitors() MonitorStore
	Environments() EnvironmentStore
	CheckIns() CheckInStore
	Projects() ProjectStore
}

// TxManager abstracts transactional execution for the recorder. The
// callback's stores all share one transaction; an error rolls everything
// back.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// Metrics records counter-style observability events on the ingestion path.
type Metrics interface {
	IncrCheckInAccepted(ctx context.Context, status types.CheckInStatus)
	IncrCheckInDropped(ctx context.Context, reason string)
}

// NopMetrics discards all metrics. Used in tests and when metrics are
// disabled by configuration.
type NopMetrics struct{}

func (NopMetrics) IncrCheckInAccepted(context.Context, types.CheckInStatus) {}
func (NopMetrics) IncrCheckInDropped(context.Context, string)               {}
