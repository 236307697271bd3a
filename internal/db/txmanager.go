package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepos bundles transaction-scoped repository instances. Every repository
// in the bundle shares the same pgx.Tx, so all writes made through it
// commit or roll back as one atomic unit.
type TxRepos struct {
	Monitors     *MonitorRepository
	Environments *EnvironmentRepository
	CheckIns     *CheckInRepository
	Projects     *ProjectRepository
}

// NewTxRepos builds a repository bundle over the given connection. Callers
// outside a transaction can pass the pool directly.
func NewTxRepos(db DBTX) *TxRepos {
	return &TxRepos{
		Monitors:     NewMonitorRepository(db),
		Environments: NewEnvironmentRepository(db),
		CheckIns:     NewCheckInRepository(db),
		Projects:     NewProjectRepository(db),
	}
}

// TxManager executes callbacks inside a database transaction. The check-in
// recorder runs its entire write path through RunInTx so rejected or failed
// requests never leave partial rows behind.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a TxManager over the given connection pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// RunInTx begins a transaction, invokes fn with transaction-scoped
// repositories, and commits. Any error from fn (or a panic) rolls the
// transaction back and is propagated to the caller.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos *TxRepos) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, NewTxRepos(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for non-transactional reads and health
// checks.
func (m *TxManager) Pool() *pgxpool.Pool {
	return m.pool
}
