package checkin

import (
	"context"
	"log/slog"

	"cronwatch/internal/types"
)

// BootstrapNotifier detects the first cron check-in (and, as a backfill,
// the first cron monitor) ever seen for a project and emits the matching
// one-time signals.
//
// Detection runs inside the check-in transaction: the guarded flag updates
// in ProjectStore make exactly one concurrent writer the winner, so each
// signal fires at most once per project. Emission runs after commit and is
// best-effort; a delivery failure is logged and never affects the check-in.
type BootstrapNotifier struct {
	emitter types.SignalEmitter
	clock   types.Clock
	logger  *slog.Logger
}

// NewBootstrapNotifier creates a notifier delivering through emitter.
// A nil emitter disables delivery (flags are still maintained).
func NewBootstrapNotifier(emitter types.SignalEmitter, clock types.Clock, logger *slog.Logger) *BootstrapNotifier {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BootstrapNotifier{emitter: emitter, clock: clock, logger: logger}
}

// Bootstrap runs the first-event detection for a project that has not yet
// recorded a cron check-in. It must be called inside the check-in
// transaction. The returned signals are pending: the caller emits them via
// EmitRobust only after the transaction commits.
//
// Ordering mirrors the flag semantics: a project receiving its first
// check-in before monitor-creation tracking existed also gets the
// monitor-created signal backfilled.
func (n *BootstrapNotifier) Bootstrap(ctx context.Context, flags ProjectStore, project *types.Project, monitor *types.Monitor) ([]types.Signal, error) {
	var pending []types.Signal
	now := n.clock.Now()
	traceID := types.GetRequestID(ctx)

	if !project.Flags.HasCronMonitors {
		won, err := flags.TrySetCronMonitorsFlag(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		project.Flags.HasCronMonitors = true
		if won {
			pending = append(pending, types.Signal{
				Name:       types.SignalFirstMonitorCreated,
				ProjectID:  project.ID,
				OccurredAt: now,
				TraceID:    traceID,
			})
		}
	}

	won, err := flags.TrySetCronCheckinsFlag(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	project.Flags.HasCronCheckins = true
	if won {
		pending = append(pending, types.Signal{
			Name:        types.SignalFirstCheckinReceived,
			ProjectID:   project.ID,
			MonitorGUID: monitor.GUID,
			OccurredAt:  now,
			TraceID:     traceID,
		})
	}

	return pending, nil
}

// EmitRobust delivers pending signals, swallowing and logging any delivery
// failure. Called after the check-in transaction has committed.
func (n *BootstrapNotifier) EmitRobust(ctx context.Context, sigs []types.Signal) {
	if n.emitter == nil || len(sigs) == 0 {
		return
	}
	for _, sig := range sigs {
		if err := n.emitter.Emit(ctx, sig); err != nil {
			n.logger.Error("bootstrap signal delivery failed",
				slog.String("signal", string(sig.Name)),
				slog.Int64("project_id", sig.ProjectID),
				slog.String("error", err.Error()),
			)
		}
	}
}
