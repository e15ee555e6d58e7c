package txn

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/storage"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/nexusdb/nexus/pkg/wal"
	"github.com/stretchr/testify/require"
)

func openTestManagerWithIndex(t *testing.T, dir string) (*Manager, *index.Manager, *storage.GraphStore, *wal.WAL) {
	t.Helper()
	store, err := storage.Open(filepath.Join(dir, "store"))
	require.NoError(t, err)

	idx, err := index.Open(filepath.Join(dir, "index"), nil)
	require.NoError(t, err)

	walPath := filepath.Join(dir, "wal.log")
	rec := NewRecovery(store)
	_, err = wal.Replay(walPath, 0, rec)
	require.NoError(t, err)

	w, err := wal.Open(walPath, 0)
	require.NoError(t, err)

	return NewManager(w, store, idx, rec.MaxTxnID()+1), idx, store, w
}

func TestCommitUpdatesLabelBitmap(t *testing.T) {
	dir := t.TempDir()
	mgr, idx, store, w := openTestManagerWithIndex(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)

	n, err := tx.CreateNode([]types.LabelID{5}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.True(t, idx.Labels().Has(5, n.ID))
	require.Equal(t, uint64(1), idx.Labels().Count(5))
}

func TestRollbackUndoesLabelBitmap(t *testing.T) {
	dir := t.TempDir()
	mgr, idx, store, w := openTestManagerWithIndex(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)

	n, err := tx.CreateNode([]types.LabelID{5}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.False(t, idx.Labels().Has(5, n.ID))
}

func TestDeleteNodeRemovesFromLabelBitmapAfterCommit(t *testing.T) {
	dir := t.TempDir()
	mgr, idx, store, w := openTestManagerWithIndex(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	setup, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	n, err := setup.CreateNode([]types.LabelID{9}, nil)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())
	require.True(t, idx.Labels().Has(9, n.ID))

	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteNode(n.ID))

	// Not yet removed — the physical delete (and index cleanup) is
	// deferred until the commit marker is durable.
	require.True(t, idx.Labels().Has(9, n.ID))

	require.NoError(t, tx.Commit())
	require.False(t, idx.Labels().Has(9, n.ID))
}

func TestSetNodeLabelsUpdatesBitmapBothWays(t *testing.T) {
	dir := t.TempDir()
	mgr, idx, store, w := openTestManagerWithIndex(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	setup, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	n, err := setup.CreateNode([]types.LabelID{1}, nil)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.SetNodeLabels(n.ID, []types.LabelID{2}))
	require.NoError(t, tx.Commit())

	require.False(t, idx.Labels().Has(1, n.ID))
	require.True(t, idx.Labels().Has(2, n.ID))
}
