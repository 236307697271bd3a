package checkin

import (
	"context"

	"cronwatch/internal/db"
)

// dbRepos adapts a db.TxRepos bundle to the Repos interface.
type dbRepos struct {
	repos *db.TxRepos
}

func (r dbRepos) Monitors() MonitorStore         { return r.repos.Monitors }
func (r dbRepos) Environments() EnvironmentStore { return r.repos.Environments }
func (r dbRepos) CheckIns() CheckInStore         { return r.repos.CheckIns }
func (r dbRepos) Projects() ProjectStore         { return r.repos.Projects }

// dbTxManager adapts db.TxManager to the recorder-facing TxManager
// interface.
type dbTxManager struct {
	tx *db.TxManager
}

func (m dbTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	return m.tx.RunInTx(ctx, func(ctx context.Context, repos *db.TxRepos) error {
		return fn(ctx, dbRepos{repos: repos})
	})
}

// NewDBTxManager wraps the concrete database transaction manager for use by
// the Recorder.
func NewDBTxManager(tx *db.TxManager) TxManager {
	return dbTxManager{tx: tx}
}
