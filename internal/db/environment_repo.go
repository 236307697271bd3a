package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cronwatch/internal/types"
)

// EnvironmentRepository provides get-or-create access to the environments
// table, the lightweight per-project name-to-id mapping referenced by
// monitor environments.
type EnvironmentRepository struct {
	db DBTX
}

// NewEnvironmentRepository creates an EnvironmentRepository backed by the
// given database connection (pool or transaction).
func NewEnvironmentRepository(db DBTX) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

// GetOrCreate returns the environment named name within a project, creating
// it if absent. The insert uses ON CONFLICT DO NOTHING against the
// (project_id, name) unique constraint so concurrent creators converge on
// one row.
func (r *EnvironmentRepository) GetOrCreate(ctx context.Context, projectID int64, name string) (*types.Environment, error) {
	env := types.Environment{ProjectID: projectID, Name: name}

	err := r.db.QueryRow(ctx,
		`INSERT INTO environments (project_id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (project_id, name) DO NOTHING
		 RETURNING id`,
		projectID, name,
	).Scan(&env.ID)
	if err == nil {
		return &env, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapDBError("create environment", err)
	}

	err = r.db.QueryRow(ctx,
		`SELECT id FROM environments WHERE project_id = $1 AND name = $2`,
		projectID, name,
	).Scan(&env.ID)
	if err != nil {
		return nil, mapDBError("get environment", err)
	}
	return &env, nil
}
