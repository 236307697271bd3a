package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cronwatch/internal/types"
)

// ProjectRepository reads project identity and maintains the one-time cron
// bootstrap flags. Project lifecycle is owned by the external management
// flow; only the flags are ever written here.
type ProjectRepository struct {
	db DBTX
}

// NewProjectRepository creates a ProjectRepository backed by the given
// database connection (pool or transaction).
func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetByID returns the project with its bootstrap flags.
func (r *ProjectRepository) GetByID(ctx context.Context, projectID int64) (*types.Project, error) {
	var p types.Project
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, slug, has_cron_checkins, has_cron_monitors
		 FROM projects
		 WHERE id = $1`,
		projectID,
	).Scan(&p.ID, &p.OrganizationID, &p.Slug, &p.Flags.HasCronCheckins, &p.Flags.HasCronMonitors)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProject, "project not found", nil)
		}
		return nil, mapDBError("get project", err)
	}
	return &p, nil
}

// TrySetCronCheckinsFlag permanently sets the has_cron_checkins flag.
// The guarded WHERE clause means exactly one caller observes the false-to-
// true transition; everyone else gets false. The bootstrap notifier uses
// that single winner to fire the first-check-in signal exactly once.
func (r *ProjectRepository) TrySetCronCheckinsFlag(ctx context.Context, projectID int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects
		 SET has_cron_checkins = TRUE
		 WHERE id = $1 AND has_cron_checkins = FALSE`,
		projectID,
	)
	if err != nil {
		return false, mapDBError("set cron checkins flag", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TrySetCronMonitorsFlag permanently sets the has_cron_monitors flag with
// the same single-winner semantics as TrySetCronCheckinsFlag. It backfills
// projects whose monitors predate flag tracking.
func (r *ProjectRepository) TrySetCronMonitorsFlag(ctx context.Context, projectID int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects
		 SET has_cron_monitors = TRUE
		 WHERE id = $1 AND has_cron_monitors = FALSE`,
		projectID,
	)
	if err != nil {
		return false, mapDBError("set cron monitors flag", err)
	}
	return tag.RowsAffected() > 0, nil
}
