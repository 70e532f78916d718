// Package storetest holds the behavior every undo log backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend is the full surface a store implementation provides
type Backend interface {
	AppendRecord(rec *models.OperationRecord) error
	GetRecord(id int64) (*models.OperationRecord, error)
	PendingRecords(batchID string) ([]*models.OperationRecord, error)
	MarkUndone(id int64) error
	LatestPendingBatch() (string, error)
	RecentRecords(limit int) ([]*models.OperationRecord, error)
	DeleteRecordsBefore(cutoff time.Time, undoneOnly bool) (int, error)
	BatchSummaries(limit int) ([]*models.BatchSummary, error)
	SaveBackup(entry *models.BackupEntry) error
	ListBackups() ([]*models.BackupEntry, error)
	DeleteBackup(path string) error
}

// Run executes the conformance suite against stores created by open.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	t.Run("AppendAssignsIDs", func(t *testing.T) { testAppendAssignsIDs(t, open(t)) })
	t.Run("PendingNewestFirst", func(t *testing.T) { testPendingNewestFirst(t, open(t)) })
	t.Run("MarkUndone", func(t *testing.T) { testMarkUndone(t, open(t)) })
	t.Run("LatestPendingBatch", func(t *testing.T) { testLatestPendingBatch(t, open(t)) })
	t.Run("RecentRecords", func(t *testing.T) { testRecentRecords(t, open(t)) })
	t.Run("DeleteRecordsBefore", func(t *testing.T) { testDeleteRecordsBefore(t, open(t)) })
	t.Run("BatchSummaries", func(t *testing.T) { testBatchSummaries(t, open(t)) })
	t.Run("Backups", func(t *testing.T) { testBackups(t, open(t)) })
}

func record(batchID string, i int, ts time.Time) *models.OperationRecord {
	return &models.OperationRecord{
		BatchID:    batchID,
		Timestamp:  ts,
		Type:       models.OperationMove,
		SourcePath: fmt.Sprintf("/src/file%d.txt", i),
		TargetPath: fmt.Sprintf("/dst/file%d.txt", i),
		FileHash:   fmt.Sprintf("hash%d", i),
	}
}

func testAppendAssignsIDs(t *testing.T, s Backend) {
	now := time.Now().UTC()
	a := record("batch-a", 1, now)
	b := record("batch-a", 2, time.Time{})
	require.NoError(t, s.AppendRecord(a))
	require.NoError(t, s.AppendRecord(b))

	assert.NotZero(t, a.ID)
	assert.Greater(t, b.ID, a.ID)
	assert.False(t, b.Timestamp.IsZero(), "zero timestamp is filled in")

	got, err := s.GetRecord(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.BatchID, got.BatchID)
	assert.Equal(t, a.SourcePath, got.SourcePath)
	assert.Equal(t, a.TargetPath, got.TargetPath)
	assert.Equal(t, "hash1", got.FileHash)
	assert.Equal(t, models.OperationMove, got.Type)
	assert.True(t, a.Timestamp.Equal(got.Timestamp))
	assert.False(t, got.Undone)

	missing, err := s.GetRecord(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testPendingNewestFirst(t *testing.T, s Backend) {
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendRecord(record("batch-a", i, now.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, s.AppendRecord(record("batch-b", 9, now)))

	recs, err := s.PendingRecords("batch-a")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "/src/file2.txt", recs[0].SourcePath)
	assert.Equal(t, "/src/file1.txt", recs[1].SourcePath)
	assert.Equal(t, "/src/file0.txt", recs[2].SourcePath)

	none, err := s.PendingRecords("unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMarkUndone(t *testing.T, s Backend) {
	a := record("batch-a", 1, time.Now().UTC())
	b := record("batch-a", 2, time.Now().UTC())
	require.NoError(t, s.AppendRecord(a))
	require.NoError(t, s.AppendRecord(b))

	require.NoError(t, s.MarkUndone(b.ID))
	// Idempotent
	require.NoError(t, s.MarkUndone(b.ID))
	require.NoError(t, s.MarkUndone(4242))

	recs, err := s.PendingRecords("batch-a")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, a.ID, recs[0].ID)

	got, err := s.GetRecord(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Undone)
}

func testLatestPendingBatch(t *testing.T, s Backend) {
	latest, err := s.LatestPendingBatch()
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	now := time.Now().UTC()
	old := record("batch-old", 1, now)
	recent := record("batch-new", 2, now.Add(time.Second))
	require.NoError(t, s.AppendRecord(old))
	require.NoError(t, s.AppendRecord(recent))

	latest, err = s.LatestPendingBatch()
	require.NoError(t, err)
	assert.Equal(t, "batch-new", latest)

	require.NoError(t, s.MarkUndone(recent.ID))
	latest, err = s.LatestPendingBatch()
	require.NoError(t, err)
	assert.Equal(t, "batch-old", latest)

	require.NoError(t, s.MarkUndone(old.ID))
	latest, err = s.LatestPendingBatch()
	require.NoError(t, err)
	assert.Equal(t, "", latest)
}

func testRecentRecords(t *testing.T, s Backend) {
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendRecord(record("batch-a", i, now.Add(time.Duration(i)*time.Second))))
	}
	recs, err := s.RecentRecords(0)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	assert.Equal(t, "/src/file4.txt", recs[0].SourcePath)

	recs, err = s.RecentRecords(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "/src/file4.txt", recs[0].SourcePath)
	assert.Equal(t, "/src/file3.txt", recs[1].SourcePath)
}

func testDeleteRecordsBefore(t *testing.T, s Backend) {
	now := time.Now().UTC()
	oldUndone := record("batch-a", 1, now.Add(-48*time.Hour))
	oldPending := record("batch-a", 2, now.Add(-48*time.Hour))
	fresh := record("batch-b", 3, now)
	require.NoError(t, s.AppendRecord(oldUndone))
	require.NoError(t, s.AppendRecord(oldPending))
	require.NoError(t, s.AppendRecord(fresh))
	require.NoError(t, s.MarkUndone(oldUndone.ID))

	cutoff := now.Add(-24 * time.Hour)

	n, err := s.DeleteRecordsBefore(cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetRecord(oldUndone.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	pending, err := s.PendingRecords("batch-a")
	require.NoError(t, err)
	require.Len(t, pending, 1, "undoable record survives the default policy")

	n, err = s.DeleteRecordsBefore(cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = s.PendingRecords("batch-a")
	require.NoError(t, err)
	assert.Empty(t, pending)

	latest, err := s.LatestPendingBatch()
	require.NoError(t, err)
	assert.Equal(t, "batch-b", latest)
}

func testBatchSummaries(t *testing.T, s Backend) {
	now := time.Now().UTC()
	a1 := record("batch-a", 1, now.Add(-time.Hour))
	a2 := record("batch-a", 2, now.Add(-time.Hour+time.Minute))
	b1 := record("batch-b", 3, now)
	for _, r := range []*models.OperationRecord{a1, a2, b1} {
		require.NoError(t, s.AppendRecord(r))
	}
	require.NoError(t, s.MarkUndone(a2.ID))

	sums, err := s.BatchSummaries(0)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	assert.Equal(t, "batch-b", sums[0].BatchID)
	assert.Equal(t, 1, sums[0].Total)
	assert.Equal(t, 1, sums[0].Pending)

	assert.Equal(t, "batch-a", sums[1].BatchID)
	assert.Equal(t, 2, sums[1].Total)
	assert.Equal(t, 1, sums[1].Pending)
	assert.True(t, sums[1].First.Equal(a1.Timestamp))
	assert.True(t, sums[1].Last.Equal(a2.Timestamp))

	limited, err := s.BatchSummaries(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "batch-b", limited[0].BatchID)
}

func testBackups(t *testing.T, s Backend) {
	now := time.Now().UTC()
	older := &models.BackupEntry{
		Path:      "/backups/backup_1",
		BatchID:   "batch-a",
		Timestamp: now.Add(-time.Hour),
		Files:     []models.BackupFile{{OriginalPath: "/a", RelativePath: "a", Size: 3, Hash: "h1"}},
	}
	newer := &models.BackupEntry{
		Path:      "/backups/backup_2",
		BatchID:   "batch-b",
		Timestamp: now,
		Files: []models.BackupFile{
			{OriginalPath: "/b", RelativePath: "b", Size: 4, Hash: "h2"},
			{OriginalPath: "/c", RelativePath: "c", Size: 5, Hash: "h3"},
		},
	}
	require.NoError(t, s.SaveBackup(older))
	require.NoError(t, s.SaveBackup(newer))

	entries, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer.Path, entries[0].Path)
	assert.Equal(t, 2, entries[0].FileCount())
	assert.Equal(t, int64(9), entries[0].TotalSize())
	assert.Equal(t, older.Path, entries[1].Path)

	require.NoError(t, s.DeleteBackup(older.Path))
	require.NoError(t, s.DeleteBackup("/not/indexed"))

	entries, err = s.ListBackups()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, newer.Path, entries[0].Path)
}
