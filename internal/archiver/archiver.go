// Package archiver drains aged check-ins out of the hot table. Check-ins
// older than the retention window are serialized to JSONL, gzip-compressed,
// stored as one archive blob per batch, and deleted, all inside a single
// transaction per batch so a crash never loses rows or archives them twice.
package archiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"

	"cronwatch/internal/db"
	"cronwatch/internal/types"
)

// Defaults for an unconfigured archiver.
const (
	DefaultRetentionDays = 90
	DefaultBatchSize     = 1000
)

// ArchiveStore is the data access contract for one archival batch. Mirrors
// the concrete db.CheckInRepository methods used here.
type ArchiveStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.CheckIn, error)
	InsertArchive(ctx context.Context, blob []byte, count int, from, to time.Time) error
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// TxRunner executes one archival batch transactionally.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store ArchiveStore) error) error
}

// dbTxRunner adapts the concrete database transaction manager.
type dbTxRunner struct {
	tx *db.TxManager
}

func (r dbTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, store ArchiveStore) error) error {
	return r.tx.RunInTx(ctx, func(ctx context.Context, repos *db.TxRepos) error {
		return fn(ctx, repos.CheckIns)
	})
}

// NewDBTxRunner wraps the database transaction manager for use by the
// Archiver.
func NewDBTxRunner(tx *db.TxManager) TxRunner {
	return dbTxRunner{tx: tx}
}

// archiveRecord is the JSONL row format inside an archive blob. Internal
// ids are written out explicitly; the API-facing CheckIn serialization
// hides them.
type archiveRecord struct {
	ID                   int64               `json:"id"`
	GUID                 string              `json:"guid"`
	ProjectID            int64               `json:"project_id"`
	MonitorID            int64               `json:"monitor_id"`
	MonitorEnvironmentID int64               `json:"monitor_environment_id"`
	Status               types.CheckInStatus `json:"status"`
	Duration             *int64              `json:"duration,omitempty"`
	DateAdded            time.Time           `json:"date_added"`
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithClock overrides the time source, for tests.
func WithClock(clock types.Clock) Option {
	return func(a *Archiver) { a.clock = clock }
}

// WithRetention sets how many days of check-ins stay in the hot table.
func WithRetention(days int) Option {
	return func(a *Archiver) { a.retentionDays = days }
}

// WithBatchSize sets how many check-ins one batch drains.
func WithBatchSize(n int) Option {
	return func(a *Archiver) { a.batchSize = n }
}

// Archiver compresses and deletes check-ins past the retention window.
type Archiver struct {
	tx     TxRunner
	clock  types.Clock
	logger *slog.Logger

	retentionDays int
	batchSize     int
}

// New creates an Archiver with the given collaborators.
func New(tx TxRunner, logger *slog.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		tx:            tx,
		clock:         types.RealClock{},
		logger:        logger,
		retentionDays: DefaultRetentionDays,
		batchSize:     DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drains every check-in older than the retention cutoff, one batch per
// transaction, and returns the total number archived. It stops at the first
// empty batch or the first error; already-committed batches stay archived.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := a.clock.Now().UTC().AddDate(0, 0, -a.retentionDays)

	total := 0
	for {
		n, err := a.archiveBatch(ctx, cutoff)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}

	a.logger.Info("archival complete",
		slog.Int("archived", total),
		slog.Time("cutoff", cutoff),
	)
	return total, nil
}

// archiveBatch moves up to batchSize aged check-ins into one compressed
// archive row. Returns how many it moved; zero means nothing is left.
func (a *Archiver) archiveBatch(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := a.tx.RunInTx(ctx, func(ctx context.Context, store ArchiveStore) error {
		checkins, err := store.ListOlderThan(ctx, cutoff, a.batchSize)
		if err != nil {
			return err
		}
		if len(checkins) == 0 {
			return nil
		}

		blob, err := compressBatch(checkins)
		if err != nil {
			return err
		}

		// ListOlderThan returns oldest first, so the coverage range is
		// first to last.
		from := checkins[0].DateAdded
		to := checkins[len(checkins)-1].DateAdded
		if err := store.InsertArchive(ctx, blob, len(checkins), from, to); err != nil {
			return err
		}

		ids := make([]int64, len(checkins))
		for i, c := range checkins {
			ids[i] = c.ID
		}
		deleted, err := store.DeleteByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if deleted != int64(len(ids)) {
			return fmt.Errorf("archived %d checkins but deleted %d", len(ids), deleted)
		}

		count = len(checkins)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// compressBatch renders check-ins as gzip-compressed JSONL, one record per
// line, oldest first.
func compressBatch(checkins []*types.CheckIn) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)

	for _, c := range checkins {
		rec := archiveRecord{
			ID:                   c.ID,
			GUID:                 c.GUID,
			ProjectID:            c.ProjectID,
			MonitorID:            c.MonitorID,
			MonitorEnvironmentID: c.MonitorEnvironmentID,
			Status:               c.Status,
			Duration:             c.Duration,
			DateAdded:            c.DateAdded,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encoding archive record: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing archive batch: %w", err)
	}
	return buf.Bytes(), nil
}
