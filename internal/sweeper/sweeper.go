// Package sweeper marks overdue monitors as timed out. A monitor is overdue
// once its expected next check-in plus the configured grace margin has
// passed without a check-in arriving. Each overdue monitor gets a synthetic
// MISSED check-in and a TIMEOUT status, written under the same freshness
// guard as real check-ins so a sweep racing a live check-in always loses to
// the fresher event.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cronwatch/internal/checkin"
	"cronwatch/internal/schedule"
	"cronwatch/internal/types"
)

// Defaults for an unconfigured sweeper.
const (
	DefaultMarginMinutes = 1
	DefaultBatchSize     = 500
	DefaultConcurrency   = 8
)

// OverdueLister pages monitors whose next check-in deadline has passed.
// Mirrors db.MonitorRepository.ListOverdue.
type OverdueLister interface {
	ListOverdue(ctx context.Context, now time.Time, defaultMarginMinutes int, limit int) ([]*types.Monitor, error)
}

// Metrics records sweep observability events.
type Metrics interface {
	RecordMonitorsSwept(ctx context.Context, count int)
}

// NopMetrics discards sweep metrics.
type NopMetrics struct{}

func (NopMetrics) RecordMonitorsSwept(context.Context, int) {}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source, for tests.
func WithClock(clock types.Clock) Option {
	return func(s *Sweeper) { s.clock = clock }
}

// WithMargin sets the default grace period in minutes for monitors whose
// config does not carry one.
func WithMargin(minutes int) Option {
	return func(s *Sweeper) { s.marginMinutes = minutes }
}

// WithBatchSize caps how many monitors one sweep run processes.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) { s.batchSize = n }
}

// WithConcurrency bounds how many monitors are swept in parallel.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) { s.concurrency = n }
}

// WithDefaultEnvironment sets the environment the synthetic MISSED check-in
// is attributed to.
func WithDefaultEnvironment(name string) Option {
	return func(s *Sweeper) { s.defaultEnv = name }
}

// Sweeper finds overdue monitors and times them out. Each monitor is
// processed in its own transaction; one failing monitor never blocks the
// rest of the batch.
type Sweeper struct {
	tx      checkin.TxManager
	overdue OverdueLister
	metrics Metrics
	clock   types.Clock
	logger  *slog.Logger

	marginMinutes int
	batchSize     int
	concurrency   int
	defaultEnv    string
}

// New creates a Sweeper with the given collaborators.
func New(tx checkin.TxManager, overdue OverdueLister, metrics Metrics, logger *slog.Logger, opts ...Option) *Sweeper {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		tx:            tx,
		overdue:       overdue,
		metrics:       metrics,
		clock:         types.RealClock{},
		logger:        logger,
		marginMinutes: DefaultMarginMinutes,
		batchSize:     DefaultBatchSize,
		concurrency:   DefaultConcurrency,
		defaultEnv:    types.DefaultEnvironment,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one pass over the overdue monitors and returns how many were
// marked timed out. Per-monitor failures are logged and skipped; the pass
// only errors when the overdue listing itself fails.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	monitors, err := s.overdue.ListOverdue(ctx, now, s.marginMinutes, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(monitors) == 0 {
		return 0, nil
	}

	var swept atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, monitor := range monitors {
		monitor := monitor
		g.Go(func() error {
			marked, err := s.sweepOne(gctx, monitor, now)
			if err != nil {
				s.logger.Error("sweep failed for monitor",
					slog.Int64("monitor_id", monitor.ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if marked {
				swept.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	count := int(swept.Load())
	s.metrics.RecordMonitorsSwept(ctx, count)
	s.logger.Info("sweep complete",
		slog.Int("overdue", len(monitors)),
		slog.Int("swept", count),
	)
	return count, nil
}

// sweepOne times out a single monitor: a MISSED check-in row, TIMEOUT status
// on the monitor and its default environment, and a fresh next_checkin so
// the monitor is not re-swept every pass. Returns whether the timeout
// marking applied; false means a live check-in beat the sweep.
func (s *Sweeper) sweepOne(ctx context.Context, monitor *types.Monitor, now time.Time) (bool, error) {
	next, err := schedule.NextCheckinFor(monitor.Config, now)
	if err != nil {
		return false, err
	}

	var marked bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos checkin.Repos) error {
		env, err := repos.Environments().GetOrCreate(ctx, monitor.ProjectID, s.defaultEnv)
		if err != nil {
			return err
		}
		menv, _, err := repos.Monitors().GetOrCreateMonitorEnvironment(ctx, monitor, env.ID)
		if err != nil {
			return err
		}

		ci := &types.CheckIn{
			GUID:                 uuid.New().String(),
			ProjectID:            monitor.ProjectID,
			MonitorID:            monitor.ID,
			MonitorEnvironmentID: menv.ID,
			Status:               types.CheckInStatusMissed,
			DateAdded:            now,
		}
		if err := repos.CheckIns().Create(ctx, ci); err != nil {
			return err
		}

		marked, err = repos.Monitors().MarkFailed(ctx, monitor.ID, now, types.MonitorStatusTimeout)
		if err != nil {
			return err
		}
		if _, err := repos.Monitors().MarkEnvFailed(ctx, menv.ID, now, types.MonitorStatusTimeout); err != nil {
			return err
		}

		// Advance next_checkin regardless of the status outcome so the
		// monitor leaves the overdue set until its next deadline.
		if _, err := repos.Monitors().UpdateStateIfFresh(ctx, monitor.ID, types.MonitorStateUpdate{
			LastCheckin: now,
			NextCheckin: &next,
		}); err != nil {
			return err
		}
		_, err = repos.Monitors().UpdateEnvStateIfFresh(ctx, menv.ID, types.MonitorStateUpdate{
			LastCheckin: now,
			NextCheckin: &next,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}
