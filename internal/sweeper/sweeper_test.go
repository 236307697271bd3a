package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwatch/internal/checkin"
	"cronwatch/internal/types"
)

var sweepNow = time.Date(2026, 3, 1, 12, 30, 30, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// sweepWorld is an in-memory stand-in for the transaction-scoped stores.
// It records every write so tests can assert exactly what a sweep did.
type sweepWorld struct {
	mu sync.Mutex

	envID      int64
	menvID     int64
	checkins   []*types.CheckIn
	failCalls  []failCall
	envFails   []failCall
	updates    []types.MonitorStateUpdate
	envUpdates []types.MonitorStateUpdate

	// markResult is returned by MarkFailed; false simulates a live
	// check-in winning the race.
	markResult bool

	// failures maps an operation name to an injected error.
	failures map[string]error
}

type failCall struct {
	id     int64
	ts     time.Time
	status types.MonitorStatus
}

func newSweepWorld() *sweepWorld {
	return &sweepWorld{
		envID:      1,
		menvID:     10,
		markResult: true,
		failures:   map[string]error{},
	}
}

func (w *sweepWorld) Monitors() checkin.MonitorStore         { return w }
func (w *sweepWorld) Environments() checkin.EnvironmentStore { return w }
func (w *sweepWorld) CheckIns() checkin.CheckInStore         { return w }
func (w *sweepWorld) Projects() checkin.ProjectStore         { return w }

func (w *sweepWorld) RunInTx(ctx context.Context, fn func(ctx context.Context, repos checkin.Repos) error) error {
	return fn(ctx, w)
}

func (w *sweepWorld) GetOrCreate(ctx context.Context, projectID int64, name string) (*types.Environment, error) {
	if err := w.failures["GetOrCreate"]; err != nil {
		return nil, err
	}
	return &types.Environment{ID: w.envID, ProjectID: projectID, Name: name}, nil
}

func (w *sweepWorld) GetOrCreateMonitorEnvironment(ctx context.Context, monitor *types.Monitor, environmentID int64) (*types.MonitorEnvironment, bool, error) {
	return &types.MonitorEnvironment{ID: w.menvID, MonitorID: monitor.ID, EnvironmentID: environmentID, Status: monitor.Status}, false, nil
}

func (w *sweepWorld) Create(ctx context.Context, c *types.CheckIn) error {
	if err := w.failures["CreateCheckIn"]; err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkins = append(w.checkins, c)
	return nil
}

func (w *sweepWorld) MarkFailed(ctx context.Context, monitorID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failCalls = append(w.failCalls, failCall{id: monitorID, ts: lastCheckin, status: failStatus})
	return w.markResult, nil
}

func (w *sweepWorld) MarkEnvFailed(ctx context.Context, monitorEnvID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.envFails = append(w.envFails, failCall{id: monitorEnvID, ts: lastCheckin, status: failStatus})
	return w.markResult, nil
}

func (w *sweepWorld) UpdateStateIfFresh(ctx context.Context, monitorID int64, upd types.MonitorStateUpdate) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.updates = append(w.updates, upd)
	return true, nil
}

func (w *sweepWorld) UpdateEnvStateIfFresh(ctx context.Context, monitorEnvID int64, upd types.MonitorStateUpdate) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.envUpdates = append(w.envUpdates, upd)
	return true, nil
}

func (w *sweepWorld) TrySetCronCheckinsFlag(ctx context.Context, projectID int64) (bool, error) {
	return false, nil
}

func (w *sweepWorld) TrySetCronMonitorsFlag(ctx context.Context, projectID int64) (bool, error) {
	return false, nil
}

type stubLister struct {
	monitors []*types.Monitor
	err      error

	gotNow    time.Time
	gotMargin int
	gotLimit  int
}

func (l *stubLister) ListOverdue(ctx context.Context, now time.Time, defaultMarginMinutes int, limit int) ([]*types.Monitor, error) {
	l.gotNow = now
	l.gotMargin = defaultMarginMinutes
	l.gotLimit = limit
	return l.monitors, l.err
}

type captureSweepMetrics struct {
	counts []int
}

func (m *captureSweepMetrics) RecordMonitorsSwept(ctx context.Context, count int) {
	m.counts = append(m.counts, count)
}

func overdueMonitor(id int64) *types.Monitor {
	last := sweepNow.Add(-time.Hour)
	next := sweepNow.Add(-30 * time.Minute)
	return &types.Monitor{
		ID:        id,
		GUID:      "guid",
		ProjectID: 7,
		Slug:      "job",
		Status:    types.MonitorStatusOK,
		Config: types.MonitorConfig{
			Schedule: types.Schedule{Type: types.ScheduleTypeCrontab, Crontab: "* * * * *"},
		},
		LastCheckin: &last,
		NextCheckin: &next,
	}
}

func newTestSweeper(world *sweepWorld, lister OverdueLister, metrics Metrics) *Sweeper {
	return New(world, lister, metrics, nil,
		WithClock(fixedClock{sweepNow}),
		WithConcurrency(1),
	)
}

func TestSweep_MarksOverdueMonitorsTimedOut(t *testing.T) {
	world := newSweepWorld()
	lister := &stubLister{monitors: []*types.Monitor{overdueMonitor(101), overdueMonitor(102)}}
	metrics := &captureSweepMetrics{}

	count, err := newTestSweeper(world, lister, metrics).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.Len(t, world.checkins, 2)
	for _, ci := range world.checkins {
		assert.Equal(t, types.CheckInStatusMissed, ci.Status)
		assert.Equal(t, sweepNow, ci.DateAdded)
		assert.Equal(t, world.menvID, ci.MonitorEnvironmentID)
		assert.NotEmpty(t, ci.GUID)
	}

	require.Len(t, world.failCalls, 2)
	for _, call := range world.failCalls {
		assert.Equal(t, types.MonitorStatusTimeout, call.status)
		assert.Equal(t, sweepNow, call.ts)
	}
	require.Len(t, world.envFails, 2)

	assert.Equal(t, []int{2}, metrics.counts)
}

func TestSweep_AdvancesNextCheckin(t *testing.T) {
	world := newSweepWorld()
	lister := &stubLister{monitors: []*types.Monitor{overdueMonitor(101)}}

	_, err := newTestSweeper(world, lister, nil).Sweep(context.Background())
	require.NoError(t, err)

	expectedNext := sweepNow.Truncate(time.Minute).Add(time.Minute)
	require.Len(t, world.updates, 1)
	require.NotNil(t, world.updates[0].NextCheckin)
	assert.Equal(t, expectedNext, *world.updates[0].NextCheckin)
	assert.Nil(t, world.updates[0].Status)

	require.Len(t, world.envUpdates, 1)
	require.NotNil(t, world.envUpdates[0].NextCheckin)
	assert.Equal(t, expectedNext, *world.envUpdates[0].NextCheckin)
}

func TestSweep_LostRaceIsNotCounted(t *testing.T) {
	world := newSweepWorld()
	world.markResult = false
	lister := &stubLister{monitors: []*types.Monitor{overdueMonitor(101)}}
	metrics := &captureSweepMetrics{}

	count, err := newTestSweeper(world, lister, metrics).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	// The deadline still advances so the monitor leaves the overdue set.
	assert.Len(t, world.updates, 1)
	assert.Equal(t, []int{0}, metrics.counts)
}

func TestSweep_EmptySetIsANoOp(t *testing.T) {
	world := newSweepWorld()
	metrics := &captureSweepMetrics{}

	count, err := newTestSweeper(world, &stubLister{}, metrics).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, metrics.counts)
	assert.Empty(t, world.checkins)
}

func TestSweep_ListErrorPropagates(t *testing.T) {
	world := newSweepWorld()
	lister := &stubLister{err: errors.New("db down")}

	_, err := newTestSweeper(world, lister, nil).Sweep(context.Background())
	require.Error(t, err)
}

func TestSweep_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	world := newSweepWorld()
	lister := &stubLister{monitors: []*types.Monitor{overdueMonitor(101), overdueMonitor(102)}}

	// Concurrency 1 sweeps in listing order, so only the first monitor's
	// insert fails.
	failing := &failFirstCreate{inner: world}
	sw := New(failing, lister, nil, nil, WithClock(fixedClock{sweepNow}), WithConcurrency(1))

	count, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, world.checkins, 1)
}

// failFirstCreate wraps sweepWorld, failing only the first check-in insert.
type failFirstCreate struct {
	inner *sweepWorld
	calls int
}

func (f *failFirstCreate) RunInTx(ctx context.Context, fn func(ctx context.Context, repos checkin.Repos) error) error {
	return fn(ctx, f)
}

func (f *failFirstCreate) Monitors() checkin.MonitorStore         { return f.inner }
func (f *failFirstCreate) Environments() checkin.EnvironmentStore { return f.inner }
func (f *failFirstCreate) Projects() checkin.ProjectStore         { return f.inner }
func (f *failFirstCreate) CheckIns() checkin.CheckInStore         { return f }

func (f *failFirstCreate) Create(ctx context.Context, c *types.CheckIn) error {
	f.calls++
	if f.calls == 1 {
		return errors.New("insert failed")
	}
	return f.inner.Create(ctx, c)
}

func TestSweep_UnparseableScheduleIsSkipped(t *testing.T) {
	world := newSweepWorld()
	bad := overdueMonitor(101)
	bad.Config.Schedule.Crontab = "not a schedule"
	lister := &stubLister{monitors: []*types.Monitor{bad, overdueMonitor(102)}}

	count, err := newTestSweeper(world, lister, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, world.checkins, 1)
}

func TestSweep_PassesConfigToLister(t *testing.T) {
	world := newSweepWorld()
	lister := &stubLister{}

	sw := New(world, lister, nil, nil,
		WithClock(fixedClock{sweepNow}),
		WithMargin(5),
		WithBatchSize(250),
	)
	_, err := sw.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sweepNow, lister.gotNow)
	assert.Equal(t, 5, lister.gotMargin)
	assert.Equal(t, 250, lister.gotLimit)
}
