package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cronwatch/internal/ratelimit"
	"cronwatch/internal/types"
)

// Default admission quota: check-ins per window per monitor.
const (
	DefaultQuotaLimit  = 5
	DefaultQuotaWindow = 60 * time.Second
)

// CreateCheckInParams carries one authorized check-in request into the
// recorder. Monitor and Project were resolved by the auth layer; the
// recorder trusts them.
type CreateCheckInParams struct {
	Project *types.Project
	Monitor *types.Monitor

	// Environment is the environment name; empty means the default.
	Environment string

	// Status is the reported outcome; empty means the check-in is
	// starting and defaults to in_progress.
	Status types.CheckInStatus

	// Duration in milliseconds, non-negative when present.
	Duration *int64
}

// CreateCheckInResult is the outcome of a creation attempt. CheckIn,
// Monitor, and MonitorEnvironment are post-transition snapshots and are
// only populated when Outcome is Created.
type CreateCheckInResult struct {
	Outcome            types.Outcome
	CheckIn            *types.CheckIn
	Monitor            *types.Monitor
	MonitorEnvironment *types.MonitorEnvironment

	// MonitorFailed mirrors TransitionResult.MonitorFailed for ERROR
	// check-ins. The API layer responds 200 instead of 201 when an error
	// check-in did not newly fail the monitor.
	MonitorFailed bool
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source, for tests.
func WithClock(clock types.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

// WithQuota overrides the per-monitor admission quota.
func WithQuota(limit int, window time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.quotaLimit = limit
		r.quotaWindow = window
	}
}

// WithDefaultEnvironment overrides the environment name used when a
// check-in omits one.
func WithDefaultEnvironment(name string) RecorderOption {
	return func(r *Recorder) { r.defaultEnv = name }
}

// Recorder validates and persists check-in events. Every accepted check-in
// runs through one transaction covering environment resolution,
// monitor-environment creation, the check-in insert, and the state machine
// transition; the rate limiter gates admission before the transaction so
// rejected requests are zero-write no-ops.
type Recorder struct {
	tx       TxManager
	limiter  types.RateLimiter
	metrics  Metrics
	notifier *BootstrapNotifier
	states   *StateMachine
	clock    types.Clock
	logger   *slog.Logger

	quotaLimit  int
	quotaWindow time.Duration
	defaultEnv  string
}

// NewRecorder creates a Recorder with the given collaborators.
func NewRecorder(tx TxManager, limiter types.RateLimiter, metrics Metrics, notifier *BootstrapNotifier, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		tx:          tx,
		limiter:     limiter,
		metrics:     metrics,
		notifier:    notifier,
		states:      NewStateMachine(logger),
		clock:       types.RealClock{},
		logger:      logger,
		quotaLimit:  DefaultQuotaLimit,
		quotaWindow: DefaultQuotaWindow,
		defaultEnv:  types.DefaultEnvironment,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateCheckIn records one check-in event.
//
// Rejections, in order, all before any row is written:
//   - monitor in a deletion state: NotFound (the monitor is logically gone)
//   - malformed status or negative duration: validation error
//   - per-monitor quota exceeded: RateLimited, with a dropped-counter
//     metric emitted
//
// On success the result carries the created check-in and the updated
// monitor / monitor-environment snapshots. The error accompanying a
// NotFound or RateLimited result is the matching *types.AppError so the
// API layer can render it directly.
func (r *Recorder) CreateCheckIn(ctx context.Context, params CreateCheckInParams) (*CreateCheckInResult, error) {
	monitor := params.Monitor
	project := params.Project

	if monitor.Status.IsDeleting() {
		return &CreateCheckInResult{Outcome: types.OutcomeNotFound},
			types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
	}

	status := params.Status
	if status == "" {
		status = types.CheckInStatusInProgress
	}
	if !types.ValidUserCheckInStatus(status) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStatus,
			"invalid check-in status", nil,
			map[string]any{"status": string(status)})
	}
	if params.Duration != nil && *params.Duration < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidDuration,
			"duration must be non-negative", nil)
	}

	scopeKey := ratelimit.CheckInScopeKey(monitor.ID)
	if r.limiter.IsLimited(ctx, scopeKey, r.quotaLimit, r.quotaWindow) {
		r.metrics.IncrCheckInDropped(ctx, "rate_limited")
		return &CreateCheckInResult{Outcome: types.OutcomeRateLimited},
			types.NewAppError(types.ErrCodeRateLimit,
				fmt.Sprintf("rate limited, please send no more than %d check-ins per %s per monitor",
					r.quotaLimit, r.quotaWindow), nil)
	}

	envName := params.Environment
	if envName == "" {
		envName = r.defaultEnv
	}

	ci := &types.CheckIn{
		GUID:      uuid.New().String(),
		ProjectID: project.ID,
		MonitorID: monitor.ID,
		Status:    status,
		Duration:  params.Duration,
		DateAdded: r.clock.Now().UTC(),
	}

	var (
		menv       *types.MonitorEnvironment
		transition *TransitionResult
		pending    []types.Signal
	)

	err := r.tx.RunInTx(ctx, func(ctx context.Context, repos Repos) error {
		env, err := repos.Environments().GetOrCreate(ctx, project.ID, envName)
		if err != nil {
			return err
		}

		menv, _, err = repos.Monitors().GetOrCreateMonitorEnvironment(ctx, monitor, env.ID)
		if err != nil {
			return err
		}
		ci.MonitorEnvironmentID = menv.ID

		if err := repos.CheckIns().Create(ctx, ci); err != nil {
			return err
		}

		transition, err = r.states.Apply(ctx, repos.Monitors(), monitor, menv, ci)
		if err != nil {
			return err
		}

		if !project.Flags.HasCronCheckins && r.notifier != nil {
			pending, err = r.notifier.Bootstrap(ctx, repos.Projects(), project, monitor)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.IncrCheckInAccepted(ctx, ci.Status)
	if r.notifier != nil {
		r.notifier.EmitRobust(ctx, pending)
	}

	r.logger.Info("checkin recorded",
		slog.String("checkin_guid", ci.GUID),
		slog.Int64("monitor_id", monitor.ID),
		slog.String("status", string(ci.Status)),
		slog.Bool("monitor_failed", transition.MonitorFailed),
	)

	return &CreateCheckInResult{
		Outcome:            types.OutcomeCreated,
		CheckIn:            ci,
		Monitor:            monitor,
		MonitorEnvironment: menv,
		MonitorFailed:      transition.MonitorFailed,
	}, nil
}
