package archiver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwatch/internal/types"
)

var archiveNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type storedArchive struct {
	blob  []byte
	count int
	from  time.Time
	to    time.Time
}

// memArchiveStore holds aged check-ins in memory and records archival
// writes. It doubles as the TxRunner since each batch is a single callback.
type memArchiveStore struct {
	checkins []*types.CheckIn
	archives []storedArchive
	deleted  [][]int64

	listErr   error
	insertErr error
	deleteErr error

	// deleteShortfall makes DeleteByIDs report fewer rows than requested.
	deleteShortfall int64

	// txCount tracks how many batch transactions ran.
	txCount int
}

func (s *memArchiveStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store ArchiveStore) error) error {
	s.txCount++
	return fn(ctx, s)
}

func (s *memArchiveStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.CheckIn, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*types.CheckIn
	for _, c := range s.checkins {
		if c.DateAdded.Before(cutoff) {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memArchiveStore) InsertArchive(ctx context.Context, blob []byte, count int, from, to time.Time) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.archives = append(s.archives, storedArchive{blob: blob, count: count, from: from, to: to})
	return nil
}

func (s *memArchiveStore) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.deleted = append(s.deleted, ids)
	remaining := s.checkins[:0]
	for _, c := range s.checkins {
		keep := true
		for _, id := range ids {
			if c.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, c)
		}
	}
	s.checkins = remaining
	return int64(len(ids)) - s.deleteShortfall, nil
}

func agedCheckIn(id int64, age time.Duration) *types.CheckIn {
	dur := int64(1200)
	return &types.CheckIn{
		ID:                   id,
		GUID:                 "guid",
		ProjectID:            7,
		MonitorID:            101,
		MonitorEnvironmentID: 10,
		Status:               types.CheckInStatusOK,
		Duration:             &dur,
		DateAdded:            archiveNow.Add(-age),
	}
}

func decodeArchive(t *testing.T, blob []byte) []archiveRecord {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	defer zr.Close()

	var records []archiveRecord
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var rec archiveRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func newTestArchiver(store *memArchiveStore, opts ...Option) *Archiver {
	opts = append([]Option{WithClock(fixedClock{archiveNow})}, opts...)
	return New(store, nil, opts...)
}

func TestRun_ArchivesAgedCheckIns(t *testing.T) {
	store := &memArchiveStore{checkins: []*types.CheckIn{
		agedCheckIn(1, 100*24*time.Hour),
		agedCheckIn(2, 95*24*time.Hour),
		agedCheckIn(3, 10*24*time.Hour), // inside retention, stays
	}}

	total, err := newTestArchiver(store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.Len(t, store.archives, 1)
	arch := store.archives[0]
	assert.Equal(t, 2, arch.count)
	assert.Equal(t, archiveNow.Add(-100*24*time.Hour), arch.from)
	assert.Equal(t, archiveNow.Add(-95*24*time.Hour), arch.to)

	records := decodeArchive(t, arch.blob)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, int64(2), records[1].ID)
	assert.Equal(t, types.CheckInStatusOK, records[0].Status)
	require.NotNil(t, records[0].Duration)
	assert.Equal(t, int64(1200), *records[0].Duration)

	require.Len(t, store.deleted, 1)
	assert.Equal(t, []int64{1, 2}, store.deleted[0])

	// The fresh check-in survives.
	require.Len(t, store.checkins, 1)
	assert.Equal(t, int64(3), store.checkins[0].ID)
}

func TestRun_DrainsInBatches(t *testing.T) {
	store := &memArchiveStore{}
	for i := int64(1); i <= 5; i++ {
		store.checkins = append(store.checkins, agedCheckIn(i, 100*24*time.Hour))
	}

	total, err := newTestArchiver(store, WithBatchSize(2)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	assert.Len(t, store.archives, 3)
	assert.Equal(t, 2, store.archives[0].count)
	assert.Equal(t, 2, store.archives[1].count)
	assert.Equal(t, 1, store.archives[2].count)
	assert.Empty(t, store.checkins)

	// Three draining batches plus the final empty probe.
	assert.Equal(t, 4, store.txCount)
}

func TestRun_NothingToArchive(t *testing.T) {
	store := &memArchiveStore{checkins: []*types.CheckIn{
		agedCheckIn(1, 24*time.Hour),
	}}

	total, err := newTestArchiver(store).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, store.archives)
	assert.Len(t, store.checkins, 1)
}

func TestRun_RespectsRetentionOption(t *testing.T) {
	store := &memArchiveStore{checkins: []*types.CheckIn{
		agedCheckIn(1, 40*24*time.Hour),
	}}

	total, err := newTestArchiver(store, WithRetention(30)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRun_InsertFailureStopsTheRun(t *testing.T) {
	store := &memArchiveStore{
		checkins:  []*types.CheckIn{agedCheckIn(1, 100 * 24 * time.Hour)},
		insertErr: errors.New("blob store full"),
	}

	total, err := newTestArchiver(store).Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, total)
	assert.Empty(t, store.deleted)
}

func TestRun_DeleteShortfallFailsTheBatch(t *testing.T) {
	store := &memArchiveStore{
		checkins:        []*types.CheckIn{agedCheckIn(1, 100*24*time.Hour), agedCheckIn(2, 100*24*time.Hour)},
		deleteShortfall: 1,
	}

	_, err := newTestArchiver(store).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleted")
}

func TestRun_ListFailurePropagates(t *testing.T) {
	store := &memArchiveStore{listErr: errors.New("db down")}

	_, err := newTestArchiver(store).Run(context.Background())
	require.Error(t, err)
}
