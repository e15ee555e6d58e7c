package txn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexusdb/nexus/pkg/storage"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/nexusdb/nexus/pkg/wal"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T, dir string) (*Manager, *storage.GraphStore, *wal.WAL) {
	t.Helper()
	store, err := storage.Open(dir)
	require.NoError(t, err)

	walPath := filepath.Join(dir, "wal.log")
	rec := NewRecovery(store)
	_, err = wal.Replay(walPath, 0, rec)
	require.NoError(t, err)

	w, err := wal.Open(walPath, 0)
	require.NoError(t, err)

	return NewManager(w, store, nil, rec.MaxTxnID()+1), store, w
}

func TestCommitAppliesAndPersists(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)

	n, err := tx.CreateNode([]types.LabelID{1}, map[types.PropertyKeyID]types.Value{1: types.NewString("alice")})
	require.NoError(t, err)

	require.NoError(t, tx.Commit())

	got, err := store.ReadNode(n.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Properties[1].Str)
}

func TestRollbackUndoesNodeCreate(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)

	n, err := tx.CreateNode(nil, nil)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback())

	_, err = store.ReadNode(n.ID)
	require.Error(t, err)
}

func TestRollbackRestoresPriorProperties(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	setup, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	n, err := setup.CreateNode(nil, map[types.PropertyKeyID]types.Value{1: types.NewInt(1)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.SetNodeProperties(n.ID, map[types.PropertyKeyID]types.Value{1: types.NewInt(2)}))
	require.NoError(t, tx.Rollback())

	got, err := store.ReadNode(n.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Properties[1].Int)
}

func TestDeleteIsDeferredUntilCommit(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	setup, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	n, err := setup.CreateNode(nil, nil)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteNode(n.ID))
	require.True(t, tx.IsNodeDeleted(n.ID))

	// Not yet physically deleted — still readable through the store.
	_, err = store.ReadNode(n.ID)
	require.NoError(t, err)

	require.NoError(t, tx.Commit())

	_, err = store.ReadNode(n.ID)
	require.Error(t, err)
}

func TestWriteLockExcludesConcurrentWriter(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)
	defer store.Close()
	defer w.Close()

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = mgr.Begin(timeoutCtx, true)
	require.Error(t, err)

	require.NoError(t, tx.Commit())
}

func TestRecoveryReplaysCommittedMutations(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	n, err := tx.CreateNode([]types.LabelID{7}, map[types.PropertyKeyID]types.Value{1: types.NewInt(42)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, w.Close())
	require.NoError(t, store.Close())

	// Reopen fresh store + WAL and replay from scratch.
	store2, err := storage.Open(dir)
	require.NoError(t, err)
	defer store2.Close()

	rec := NewRecovery(store2)
	_, err = wal.Replay(filepath.Join(dir, "wal.log"), 0, rec)
	require.NoError(t, err)

	got, err := store2.ReadNode(n.ID)
	require.NoError(t, err)
	require.Equal(t, []types.LabelID{7}, got.Labels)
	require.Equal(t, int64(42), got.Properties[1].Int)
}

func TestRecoveryDropsUncommittedMutations(t *testing.T) {
	dir := t.TempDir()
	mgr, store, w := openTestManager(t, dir)

	ctx := context.Background()
	tx, err := mgr.Begin(ctx, true)
	require.NoError(t, err)
	n, err := tx.CreateNode(nil, nil)
	require.NoError(t, err)
	_ = n
	// Crash before commit: close the WAL without ever appending
	// EntryCommitTxn.
	require.NoError(t, w.Close())
	require.NoError(t, store.Close())

	store2, err := storage.Open(dir)
	require.NoError(t, err)
	defer store2.Close()

	rec := NewRecovery(store2)
	_, err = wal.Replay(filepath.Join(dir, "wal.log"), 0, rec)
	require.NoError(t, err)

	_, err = store2.ReadNode(n.ID)
	require.Error(t, err)
}
