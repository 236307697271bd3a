package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cronwatch/internal/types"
)

// =============================================================================
// In-memory persistence harness
//
// memWorld emulates the storage semantics the recorder depends on: guarded
// conditional updates on monitor rows, unique-constraint get-or-create for
// environments and monitor-environments, and single-winner flag sets. The
// fake transaction manager snapshots the world before the callback and
// restores it on error so tests can assert zero partial writes.
// =============================================================================

type memMonitorRow struct {
	status      types.MonitorStatus
	lastCheckin *time.Time
	nextCheckin *time.Time
}

type memEnvRow struct {
	id        int64
	projectID int64
	name      string
}

type memWorld struct {
	mu sync.Mutex

	monitors map[int64]*memMonitorRow
	envs     map[string]*memEnvRow                 // key: projectID/name
	menvs    map[string]*types.MonitorEnvironment  // key: monitorID/envID
	flags    map[int64]*types.ProjectFlags
	checkins []*types.CheckIn

	nextID int64

	// Error injection: method name -> error.
	failures map[string]error
}

func newMemWorld() *memWorld {
	return &memWorld{
		monitors: make(map[int64]*memMonitorRow),
		envs:     make(map[string]*memEnvRow),
		menvs:    make(map[string]*types.MonitorEnvironment),
		flags:    make(map[int64]*types.ProjectFlags),
		failures: make(map[string]error),
	}
}

// seedMonitor registers the stored row for a monitor.
func (w *memWorld) seedMonitor(m *types.Monitor) {
	w.monitors[m.ID] = &memMonitorRow{
		status:      m.Status,
		lastCheckin: copyTime(m.LastCheckin),
		nextCheckin: copyTime(m.NextCheckin),
	}
}

func (w *memWorld) seedFlags(projectID int64, f types.ProjectFlags) {
	w.flags[projectID] = &f
}

func (w *memWorld) monitorRow(id int64) *memMonitorRow { return w.monitors[id] }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (w *memWorld) fail(method string) error { return w.failures[method] }

func (w *memWorld) allocID() int64 {
	w.nextID++
	return w.nextID
}

// snapshot/restore implement the rollback semantics of the fake tx manager.
func (w *memWorld) snapshot() *memWorld {
	s := newMemWorld()
	s.nextID = w.nextID
	for id, row := range w.monitors {
		s.monitors[id] = &memMonitorRow{row.status, copyTime(row.lastCheckin), copyTime(row.nextCheckin)}
	}
	for k, e := range w.envs {
		c := *e
		s.envs[k] = &c
	}
	for k, me := range w.menvs {
		c := *me
		c.LastCheckin = copyTime(me.LastCheckin)
		c.NextCheckin = copyTime(me.NextCheckin)
		s.menvs[k] = &c
	}
	for id, f := range w.flags {
		c := *f
		s.flags[id] = &c
	}
	s.checkins = append(s.checkins, w.checkins...)
	return s
}

func (w *memWorld) restore(s *memWorld) {
	w.monitors = s.monitors
	w.envs = s.envs
	w.menvs = s.menvs
	w.flags = s.flags
	w.checkins = s.checkins
	w.nextID = s.nextID
}

// --- MonitorStore ---

func excludedStatus(s types.MonitorStatus) bool {
	return s == types.MonitorStatusDisabled || s.IsDeleting()
}

func fresh(stored *time.Time, incoming time.Time) bool {
	return stored == nil || !stored.After(incoming)
}

func (w *memWorld) MarkFailed(ctx context.Context, monitorID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("MarkFailed"); err != nil {
		return false, err
	}
	row, ok := w.monitors[monitorID]
	if !ok || excludedStatus(row.status) || !fresh(row.lastCheckin, lastCheckin) {
		return false, nil
	}
	row.status = failStatus
	ts := lastCheckin
	row.lastCheckin = &ts
	return true, nil
}

func (w *memWorld) UpdateStateIfFresh(ctx context.Context, monitorID int64, upd types.MonitorStateUpdate) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("UpdateStateIfFresh"); err != nil {
		return false, err
	}
	row, ok := w.monitors[monitorID]
	if !ok || !fresh(row.lastCheckin, upd.LastCheckin) {
		return false, nil
	}
	applyUpdToRow(row, upd)
	return true, nil
}

func (w *memWorld) MarkEnvFailed(ctx context.Context, menvID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("MarkEnvFailed"); err != nil {
		return false, err
	}
	me := w.menvByID(menvID)
	if me == nil || excludedStatus(me.Status) || !fresh(me.LastCheckin, lastCheckin) {
		return false, nil
	}
	me.Status = failStatus
	ts := lastCheckin
	me.LastCheckin = &ts
	return true, nil
}

func (w *memWorld) UpdateEnvStateIfFresh(ctx context.Context, menvID int64, upd types.MonitorStateUpdate) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("UpdateEnvStateIfFresh"); err != nil {
		return false, err
	}
	me := w.menvByID(menvID)
	if me == nil || !fresh(me.LastCheckin, upd.LastCheckin) {
		return false, nil
	}
	ts := upd.LastCheckin
	me.LastCheckin = &ts
	if upd.NextCheckin != nil {
		me.NextCheckin = copyTime(upd.NextCheckin)
	}
	if upd.Status != nil {
		me.Status = *upd.Status
	}
	return true, nil
}

func (w *memWorld) menvByID(id int64) *types.MonitorEnvironment {
	for _, me := range w.menvs {
		if me.ID == id {
			return me
		}
	}
	return nil
}

func (w *memWorld) GetOrCreateMonitorEnvironment(ctx context.Context, monitor *types.Monitor, environmentID int64) (*types.MonitorEnvironment, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("GetOrCreateMonitorEnvironment"); err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("%d/%d", monitor.ID, environmentID)
	if me, ok := w.menvs[key]; ok {
		c := *me
		c.LastCheckin = copyTime(me.LastCheckin)
		c.NextCheckin = copyTime(me.NextCheckin)
		return &c, false, nil
	}
	me := &types.MonitorEnvironment{
		ID:            w.allocID(),
		MonitorID:     monitor.ID,
		EnvironmentID: environmentID,
		Status:        monitor.Status,
		LastCheckin:   copyTime(monitor.LastCheckin),
		NextCheckin:   copyTime(monitor.NextCheckin),
	}
	w.menvs[key] = me
	c := *me
	return &c, true, nil
}

func applyUpdToRow(row *memMonitorRow, upd types.MonitorStateUpdate) {
	ts := upd.LastCheckin
	row.lastCheckin = &ts
	if upd.NextCheckin != nil {
		row.nextCheckin = copyTime(upd.NextCheckin)
	}
	if upd.Status != nil {
		row.status = *upd.Status
	}
}

// --- EnvironmentStore ---

func (w *memWorld) GetOrCreate(ctx context.Context, projectID int64, name string) (*types.Environment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("GetOrCreate"); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d/%s", projectID, name)
	if e, ok := w.envs[key]; ok {
		return &types.Environment{ID: e.id, ProjectID: e.projectID, Name: e.name}, nil
	}
	e := &memEnvRow{id: w.allocID(), projectID: projectID, name: name}
	w.envs[key] = e
	return &types.Environment{ID: e.id, ProjectID: projectID, Name: name}, nil
}

// --- CheckInStore ---

func (w *memWorld) Create(ctx context.Context, c *types.CheckIn) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("CreateCheckIn"); err != nil {
		return err
	}
	c.ID = w.allocID()
	stored := *c
	w.checkins = append(w.checkins, &stored)
	return nil
}

// --- ProjectStore ---

func (w *memWorld) TrySetCronCheckinsFlag(ctx context.Context, projectID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("TrySetCronCheckinsFlag"); err != nil {
		return false, err
	}
	f, ok := w.flags[projectID]
	if !ok {
		f = &types.ProjectFlags{}
		w.flags[projectID] = f
	}
	if f.HasCronCheckins {
		return false, nil
	}
	f.HasCronCheckins = true
	return true, nil
}

func (w *memWorld) TrySetCronMonitorsFlag(ctx context.Context, projectID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail("TrySetCronMonitorsFlag"); err != nil {
		return false, err
	}
	f, ok := w.flags[projectID]
	if !ok {
		f = &types.ProjectFlags{}
		w.flags[projectID] = f
	}
	if f.HasCronMonitors {
		return false, nil
	}
	f.HasCronMonitors = true
	return true, nil
}

// --- Repos / TxManager ---

func (w *memWorld) Monitors() MonitorStore         { return w }
func (w *memWorld) Environments() EnvironmentStore { return w }
func (w *memWorld) CheckIns() CheckInStore         { return w }
func (w *memWorld) Projects() ProjectStore         { return w }

// memTxManager runs callbacks against the world, restoring the pre-callback
// state on error to emulate transaction rollback.
type memTxManager struct {
	world   *memWorld
	beginErr error
}

func (m *memTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	before := m.world.snapshot()
	if err := fn(ctx, m.world); err != nil {
		m.world.restore(before)
		return err
	}
	return nil
}

// =============================================================================
// Collaborator fakes
// =============================================================================

type stubLimiter struct {
	limited bool
	calls   []string
}

func (l *stubLimiter) IsLimited(ctx context.Context, scopeKey string, limit int, window time.Duration) bool {
	l.calls = append(l.calls, scopeKey)
	return l.limited
}

type captureMetrics struct {
	accepted []types.CheckInStatus
	dropped  []string
}

func (m *captureMetrics) IncrCheckInAccepted(ctx context.Context, status types.CheckInStatus) {
	m.accepted = append(m.accepted, status)
}

func (m *captureMetrics) IncrCheckInDropped(ctx context.Context, reason string) {
	m.dropped = append(m.dropped, reason)
}

type captureEmitter struct {
	emitted []types.Signal
	err     error
}

func (e *captureEmitter) Emit(ctx context.Context, sig types.Signal) error {
	if e.err != nil {
		return e.err
	}
	e.emitted = append(e.emitted, sig)
	return nil
}

var errEmitDown = errors.New("signal sink unavailable")

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }
