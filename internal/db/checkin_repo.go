package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"cronwatch/internal/types"
)

// checkInColumns is the standard column set for check-in queries.
const checkInColumns = `c.id, c.guid, c.project_id, c.monitor_id, c.monitor_environment_id,
	c.status, c.duration, c.date_added`

// ListCheckInsParams filters and pages a check-in listing. Results are
// always ordered newest-first by date_added.
type ListCheckInsParams struct {
	MonitorID int64
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// CheckInRepository provides access to the append-only monitor_checkins
// table. Rows are inserted by the recorder and the sweeper, listed by the
// API, and eventually drained by the retention archiver; they are never
// updated in place.
type CheckInRepository struct {
	db DBTX
}

// NewCheckInRepository creates a CheckInRepository backed by the given
// database connection (pool or transaction).
func NewCheckInRepository(db DBTX) *CheckInRepository {
	return &CheckInRepository{db: db}
}

func scanCheckIn(row pgx.Row) (*types.CheckIn, error) {
	var c types.CheckIn
	err := row.Scan(
		&c.ID,
		&c.GUID,
		&c.ProjectID,
		&c.MonitorID,
		&c.MonitorEnvironmentID,
		&c.Status,
		&c.Duration,
		&c.DateAdded,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a check-in row and fills in the generated id.
func (r *CheckInRepository) Create(ctx context.Context, c *types.CheckIn) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO monitor_checkins
		   (guid, project_id, monitor_id, monitor_environment_id, status, duration, date_added)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.GUID, c.ProjectID, c.MonitorID, c.MonitorEnvironmentID, c.Status, c.Duration, c.DateAdded,
	).Scan(&c.ID)
	if err != nil {
		return mapDBError("create checkin", err)
	}
	return nil
}

// List returns check-ins for a monitor within [Start, End], newest first.
func (r *CheckInRepository) List(ctx context.Context, params ListCheckInsParams) ([]*types.CheckIn, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+checkInColumns+`
		 FROM monitor_checkins c
		 WHERE c.monitor_id = $1
		   AND c.date_added >= $2
		   AND c.date_added <= $3
		 ORDER BY c.date_added DESC
		 LIMIT $4 OFFSET $5`,
		params.MonitorID, params.Start, params.End, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, mapDBError("list checkins", err)
	}
	defer rows.Close()

	return collectCheckIns(rows)
}

// ListOlderThan returns up to limit check-ins whose date_added precedes the
// cutoff, oldest first. Used by the retention archiver to drain in batches.
func (r *CheckInRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.CheckIn, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+checkInColumns+`
		 FROM monitor_checkins c
		 WHERE c.date_added < $1
		 ORDER BY c.date_added ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, mapDBError("list aged checkins", err)
	}
	defer rows.Close()

	return collectCheckIns(rows)
}

// DeleteByIDs removes the given check-in rows. Only called by the archiver,
// inside the same transaction that persisted the compressed archive blob.
func (r *CheckInRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM monitor_checkins WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, mapDBError("delete archived checkins", err)
	}
	return tag.RowsAffected(), nil
}

// InsertArchive stores one gzip-compressed JSONL batch of retired check-ins
// together with its coverage metadata.
func (r *CheckInRepository) InsertArchive(ctx context.Context, blob []byte, count int, from, to time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO checkin_archives (blob, checkin_count, range_start, range_end, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		blob, count, from, to,
	)
	if err != nil {
		return mapDBError("insert checkin archive", err)
	}
	return nil
}

func collectCheckIns(rows pgx.Rows) ([]*types.CheckIn, error) {
	var checkins []*types.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, mapDBError("scan checkin", err)
		}
		checkins = append(checkins, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError("iterate checkins", err)
	}
	return checkins, nil
}
