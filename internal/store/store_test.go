package store

import (
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a new bbolt store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend { return newTestStore(t) })
}

func TestStore_ReopenKeepsRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	st, err := New(dbPath)
	require.NoError(t, err)

	rec := &models.OperationRecord{BatchID: "b", Type: models.OperationMove, SourcePath: "/a", TargetPath: "/b"}
	require.NoError(t, st.AppendRecord(rec))
	require.NoError(t, st.Close())

	st, err = New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	pending, err := st.PendingRecords("b")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)

	// IDs keep increasing across reopen
	next := &models.OperationRecord{BatchID: "b", Type: models.OperationMove, SourcePath: "/c", TargetPath: "/d"}
	require.NoError(t, st.AppendRecord(next))
	assert.Greater(t, next.ID, rec.ID)
}

func TestStore_CloseTwice(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())
	st.db = nil
	assert.NoError(t, st.Close())
}
