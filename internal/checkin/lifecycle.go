package checkin

import (
	"context"
	"log/slog"
	"time"

	"cronwatch/internal/schedule"
	"cronwatch/internal/types"
)

// TransitionResult reports what a check-in did to monitor state.
type TransitionResult struct {
	// MonitorFailed is set on the ERROR path when the failure marking
	// applied to the monitor row. False means either the monitor is
	// excluded (disabled/deleting) or a newer check-in already advanced
	// it; the recorder shapes the response differently in that case.
	MonitorFailed bool

	// Applied reports whether the non-error conditional update advanced
	// the monitor row. False means a concurrent check-in with a later
	// timestamp won.
	Applied bool
}

// StateMachine owns the monitor and monitor-environment status lifecycle.
// It never reads rows back: every transition is expressed as a conditional
// write so that concurrent check-ins for one monitor converge on the one
// with the latest timestamp, regardless of arrival order.
type StateMachine struct {
	nextCheckin func(types.MonitorConfig, time.Time) (time.Time, error)
	logger      *slog.Logger
}

// NewStateMachine creates a StateMachine using the schedule calculator for
// next-check-in computation.
func NewStateMachine(logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		nextCheckin: schedule.NextCheckinFor,
		logger:      logger,
	}
}

// Apply transitions monitor and monitor-environment state for a newly
// recorded check-in. The passed monitor and menv structs are mutated to
// reflect the applied transition so callers get an updated snapshot without
// a re-read.
//
// The rule, applied independently to each entity:
//
//   - ERROR check-in, entity not disabled: mark the entity failed
//     (status ERROR, last_checkin advanced) under the freshness guard.
//     next_checkin is deliberately left alone on this path.
//   - Anything else (OK, or a terminal status on a disabled entity): advance
//     last_checkin, recompute next_checkin from the check-in timestamp, and
//     set status OK only when the check-in is OK and the entity is not
//     disabled. DISABLED is sticky: timestamps advance, status never moves.
func (sm *StateMachine) Apply(ctx context.Context, store MonitorStore, monitor *types.Monitor, menv *types.MonitorEnvironment, ci *types.CheckIn) (*TransitionResult, error) {
	if ci.Status == types.CheckInStatusError && monitor.Status != types.MonitorStatusDisabled {
		return sm.applyFailure(ctx, store, monitor, menv, ci)
	}
	return sm.applyAdvance(ctx, store, monitor, menv, ci)
}

func (sm *StateMachine) applyFailure(ctx context.Context, store MonitorStore, monitor *types.Monitor, menv *types.MonitorEnvironment, ci *types.CheckIn) (*TransitionResult, error) {
	monitorFailed, err := store.MarkFailed(ctx, monitor.ID, ci.DateAdded, types.MonitorStatusError)
	if err != nil {
		return nil, err
	}
	envFailed, err := store.MarkEnvFailed(ctx, menv.ID, ci.DateAdded, types.MonitorStatusError)
	if err != nil {
		return nil, err
	}

	if monitorFailed {
		ts := ci.DateAdded
		monitor.Status = types.MonitorStatusError
		monitor.LastCheckin = &ts
	}
	if envFailed {
		ts := ci.DateAdded
		menv.Status = types.MonitorStatusError
		menv.LastCheckin = &ts
	}

	return &TransitionResult{MonitorFailed: monitorFailed}, nil
}

func (sm *StateMachine) applyAdvance(ctx context.Context, store MonitorStore, monitor *types.Monitor, menv *types.MonitorEnvironment, ci *types.CheckIn) (*TransitionResult, error) {
	next, err := sm.nextCheckin(monitor.Config, ci.DateAdded)
	if err != nil {
		// A monitor with an unparseable stored schedule is a management
		// flow defect; surface it rather than guessing a cadence.
		return nil, err
	}

	upd := types.MonitorStateUpdate{
		LastCheckin: ci.DateAdded,
		NextCheckin: &next,
	}
	if ci.Status == types.CheckInStatusOK && monitor.Status != types.MonitorStatusDisabled {
		ok := types.MonitorStatusOK
		upd.Status = &ok
	}

	applied, err := store.UpdateStateIfFresh(ctx, monitor.ID, upd)
	if err != nil {
		return nil, err
	}

	envUpd := types.MonitorStateUpdate{
		LastCheckin: ci.DateAdded,
		NextCheckin: &next,
	}
	if ci.Status == types.CheckInStatusOK && menv.Status != types.MonitorStatusDisabled {
		ok := types.MonitorStatusOK
		envUpd.Status = &ok
	}

	envApplied, err := store.UpdateEnvStateIfFresh(ctx, menv.ID, envUpd)
	if err != nil {
		return nil, err
	}

	if applied {
		applyToSnapshot(&monitor.Status, &monitor.LastCheckin, &monitor.NextCheckin, upd)
	}
	if envApplied {
		applyToSnapshot(&menv.Status, &menv.LastCheckin, &menv.NextCheckin, envUpd)
	}

	if !applied {
		sm.logger.Debug("stale checkin skipped monitor update",
			slog.Int64("monitor_id", monitor.ID),
			slog.Time("date_added", ci.DateAdded),
		)
	}

	return &TransitionResult{Applied: applied}, nil
}

// applyToSnapshot mirrors an applied conditional update onto the in-memory
// entity so callers see the post-transition state.
func applyToSnapshot(status *types.MonitorStatus, last, next **time.Time, upd types.MonitorStateUpdate) {
	ts := upd.LastCheckin
	*last = &ts
	if upd.NextCheckin != nil {
		n := *upd.NextCheckin
		*next = &n
	}
	if upd.Status != nil {
		*status = *upd.Status
	}
}
