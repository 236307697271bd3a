package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cronwatch/internal/types"
)

// excludedFromTransitions lists the monitor statuses that must never be
// overwritten by a failure marking. DISABLED is sticky; the deletion states
// are logically gone.
const excludedFromTransitions = `('disabled', 'pending_deletion', 'deletion_in_progress')`

// monitorColumns is the standard column set for monitor queries.
const monitorColumns = `m.id, m.guid, m.organization_id, m.project_id, m.slug, m.name,
	m.status, m.config, m.last_checkin, m.next_checkin, m.created_at, m.updated_at`

// MonitorRepository provides data access for the monitors and
// monitor_environments tables. Monitor creation and deletion belong to the
// external management flow; this repository only reads monitors and applies
// the state transitions owned by the check-in engine.
type MonitorRepository struct {
	db DBTX
}

// NewMonitorRepository creates a MonitorRepository backed by the given
// database connection (pool or transaction).
func NewMonitorRepository(db DBTX) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// scanMonitor scans a single monitor row. Column order must match
// monitorColumns.
func scanMonitor(row pgx.Row) (*types.Monitor, error) {
	var m types.Monitor
	var configRaw []byte

	err := row.Scan(
		&m.ID,
		&m.GUID,
		&m.OrganizationID,
		&m.ProjectID,
		&m.Slug,
		&m.Name,
		&m.Status,
		&configRaw,
		&m.LastCheckin,
		&m.NextCheckin,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &m.Config); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB,
				"corrupt monitor config", err)
		}
	}
	return &m, nil
}

// GetBySlug returns the monitor identified by slug within a project.
func (r *MonitorRepository) GetBySlug(ctx context.Context, projectID int64, slug string) (*types.Monitor, error) {
	m, err := scanMonitor(r.db.QueryRow(ctx,
		`SELECT `+monitorColumns+`
		 FROM monitors m
		 WHERE m.project_id = $1 AND m.slug = $2`,
		projectID, slug,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
		}
		return nil, mapDBError("get monitor by slug", err)
	}
	return m, nil
}

// GetByGUID returns the monitor identified by its external guid.
func (r *MonitorRepository) GetByGUID(ctx context.Context, guid string) (*types.Monitor, error) {
	m, err := scanMonitor(r.db.QueryRow(ctx,
		`SELECT `+monitorColumns+`
		 FROM monitors m
		 WHERE m.guid = $1`,
		guid,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
		}
		return nil, mapDBError("get monitor by guid", err)
	}
	return m, nil
}

// UpdateStateIfFresh applies a conditional state update to a monitor row.
// The update only takes effect when the stored last_checkin has not already
// advanced past upd.LastCheckin; it returns whether a row was written. Nil
// fields in upd leave the stored value unchanged. This is the single atomic
// primitive that makes concurrent check-ins for one monitor converge on the
// latest timestamp.
func (r *MonitorRepository) UpdateStateIfFresh(ctx context.Context, monitorID int64, upd types.MonitorStateUpdate) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitors
		 SET last_checkin = $2,
		     next_checkin = COALESCE($3, next_checkin),
		     status = COALESCE($4, status),
		     updated_at = now()
		 WHERE id = $1
		   AND (last_checkin IS NULL OR last_checkin <= $2)`,
		monitorID, upd.LastCheckin, upd.NextCheckin, upd.Status,
	)
	if err != nil {
		return false, mapDBError("update monitor state", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions a monitor into failStatus (ERROR from a failed
// check-in, TIMEOUT from the overdue sweeper) under the same freshness
// guard, additionally refusing to touch disabled or deleting monitors.
// Returns whether the transition applied; a false return means either a
// newer check-in already advanced the row or the monitor is excluded.
func (r *MonitorRepository) MarkFailed(ctx context.Context, monitorID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitors
		 SET status = $3, last_checkin = $2, updated_at = now()
		 WHERE id = $1
		   AND (last_checkin IS NULL OR last_checkin <= $2)
		   AND status NOT IN `+excludedFromTransitions,
		monitorID, lastCheckin, failStatus,
	)
	if err != nil {
		return false, mapDBError("mark monitor failed", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOrCreateMonitorEnvironment returns the monitor-environment row for
// (monitor, environment), creating it if absent. A newly created row is
// seeded from the monitor's current status and checkin timestamps
// (snapshot-at-creation; it does not retroactively reflect later monitor
// changes). The insert races safely: ON CONFLICT DO NOTHING followed by a
// re-select makes the outcome idempotent whichever concurrent caller's
// insert wins.
func (r *MonitorRepository) GetOrCreateMonitorEnvironment(ctx context.Context, monitor *types.Monitor, environmentID int64) (*types.MonitorEnvironment, bool, error) {
	var env types.MonitorEnvironment
	err := r.db.QueryRow(ctx,
		`INSERT INTO monitor_environments (monitor_id, environment_id, status, last_checkin, next_checkin)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (monitor_id, environment_id) DO NOTHING
		 RETURNING id, monitor_id, environment_id, status, last_checkin, next_checkin`,
		monitor.ID, environmentID, monitor.Status, monitor.LastCheckin, monitor.NextCheckin,
	).Scan(&env.ID, &env.MonitorID, &env.EnvironmentID, &env.Status, &env.LastCheckin, &env.NextCheckin)
	if err == nil {
		return &env, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapDBError("create monitor environment", err)
	}

	// Conflict: another writer created the row first (or it already
	// existed). Fetch the winner.
	err = r.db.QueryRow(ctx,
		`SELECT id, monitor_id, environment_id, status, last_checkin, next_checkin
		 FROM monitor_environments
		 WHERE monitor_id = $1 AND environment_id = $2`,
		monitor.ID, environmentID,
	).Scan(&env.ID, &env.MonitorID, &env.EnvironmentID, &env.Status, &env.LastCheckin, &env.NextCheckin)
	if err != nil {
		return nil, false, mapDBError("get monitor environment", err)
	}
	return &env, false, nil
}

// UpdateEnvStateIfFresh is the monitor-environment analogue of
// UpdateStateIfFresh.
func (r *MonitorRepository) UpdateEnvStateIfFresh(ctx context.Context, monitorEnvID int64, upd types.MonitorStateUpdate) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitor_environments
		 SET last_checkin = $2,
		     next_checkin = COALESCE($3, next_checkin),
		     status = COALESCE($4, status)
		 WHERE id = $1
		   AND (last_checkin IS NULL OR last_checkin <= $2)`,
		monitorEnvID, upd.LastCheckin, upd.NextCheckin, upd.Status,
	)
	if err != nil {
		return false, mapDBError("update monitor environment state", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkEnvFailed is the monitor-environment analogue of MarkFailed.
func (r *MonitorRepository) MarkEnvFailed(ctx context.Context, monitorEnvID int64, lastCheckin time.Time, failStatus types.MonitorStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitor_environments
		 SET status = $3, last_checkin = $2
		 WHERE id = $1
		   AND (last_checkin IS NULL OR last_checkin <= $2)
		   AND status NOT IN `+excludedFromTransitions,
		monitorEnvID, lastCheckin, failStatus,
	)
	if err != nil {
		return false, mapDBError("mark monitor environment failed", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListOverdue returns monitors whose next expected check-in, plus their
// configured margin (defaultMarginMinutes when the config omits one), has
// passed as of now. Disabled and deleting monitors are skipped. Results are
// oldest-first and capped at limit so a single sweep cannot run unbounded.
func (r *MonitorRepository) ListOverdue(ctx context.Context, now time.Time, defaultMarginMinutes int, limit int) ([]*types.Monitor, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+monitorColumns+`
		 FROM monitors m
		 WHERE m.status NOT IN `+excludedFromTransitions+`
		   AND m.next_checkin IS NOT NULL
		   AND m.next_checkin + make_interval(mins => COALESCE((m.config->>'checkin_margin')::int, $2)) <= $1
		 ORDER BY m.next_checkin ASC
		 LIMIT $3`,
		now, defaultMarginMinutes, limit,
	)
	if err != nil {
		return nil, mapDBError("list overdue monitors", err)
	}
	defer rows.Close()

	var monitors []*types.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, mapDBError("scan overdue monitor", err)
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError("iterate overdue monitors", err)
	}
	return monitors, nil
}

// mapDBError wraps a raw pgx error into the internal database AppError.
func mapDBError(op string, err error) error {
	return types.NewAppError(types.ErrCodeInternalDB, "failed to "+op, err)
}
