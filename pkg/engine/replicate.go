package engine

import (
	"os"
	"path/filepath"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/txn"
	"github.com/nexusdb/nexus/pkg/wal"
)

// This file is the seam pkg/replication drives the engine through. It
// never imports pkg/replication itself (see ReplicationController in
// engine.go) — these methods only expose what a master needs to tail a
// database's WAL and snapshot its directory, and what a replica needs to
// apply a streamed entry or restore from a received snapshot.

// DataDir returns the engine's root data directory.
func (e *Engine) DataDir() string { return e.cfg.DataDir }

// DatabaseDir returns the on-disk directory for name, whether or not it
// is currently open.
func (e *Engine) DatabaseDir(name string) string {
	return databaseDir(e.cfg.DataDir, name)
}

// EnsureDatabaseOpen registers name in the catalog if it isn't already
// (a replica learns database names from the master's WalEntry stream,
// not from a local CreateDatabase call) and opens its stack.
func (e *Engine) EnsureDatabaseOpen(name string) error {
	if _, err := e.cat.GetDatabase(name); err != nil {
		if err := e.cat.CreateDatabase(name); err != nil {
			return err
		}
	}
	_, err := e.acquireDatabase(name)
	return err
}

// SnapshotInfo returns the paths a master packages into a snapshot
// archive for db, plus the WAL offset the archive is consistent up to:
// entries at or after this offset must still be streamed to a replica
// that restores from it.
func (e *Engine) SnapshotInfo(db string) (storeDir, indexDir string, offset uint64, err error) {
	d, err := e.acquireDatabase(db)
	if err != nil {
		return "", "", 0, err
	}
	return filepath.Join(d.dir, "store"), filepath.Join(d.dir, "indexes"), d.wal.Offset(), nil
}

// WALPath returns the WAL file path a master tails to discover newly
// committed entries for db.
func (e *Engine) WALPath(db string) (string, error) {
	d, err := e.acquireDatabase(db)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.dir, "wal.log"), nil
}

// PrepareRestore closes db's stack (if open) and clears its store,
// indexes and WAL, returning the paths a replica extracts a received
// snapshot archive into. The caller must follow with EnsureDatabaseOpen
// once the archive is extracted.
func (e *Engine) PrepareRestore(db string) (storeDir, indexDir string, err error) {
	if err := e.CloseDatabase(db); err != nil {
		return "", "", err
	}
	dir := databaseDir(e.cfg.DataDir, db)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "engine.PrepareRestore", err)
	}
	storeDir = filepath.Join(dir, "store")
	indexDir = filepath.Join(dir, "indexes")
	for _, p := range []string{storeDir, indexDir, filepath.Join(dir, "wal.log")} {
		if err := os.RemoveAll(p); err != nil {
			return "", "", nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "engine.PrepareRestore", err)
		}
	}
	return storeDir, indexDir, nil
}

// ReplicaSink is what a replica connection applies each streamed WAL
// entry through: the entry is appended to db's own local WAL (so a
// replica promoted to master keeps a complete log of its own), then fed
// to the same pending-transaction buffering wal.Replay uses during crash
// recovery — just driven one entry at a time from the network instead of
// read back from a file.
type ReplicaSink struct {
	d       *database
	pending map[uint64][]wal.Entry
}

// ReplicaSinkFor opens (registering if necessary) db and returns a sink
// a replica connection can drive with successive streamed entries.
func (e *Engine) ReplicaSinkFor(db string) (*ReplicaSink, error) {
	if err := e.EnsureDatabaseOpen(db); err != nil {
		return nil, err
	}
	e.mu.RLock()
	d := e.databases[db]
	e.mu.RUnlock()
	return &ReplicaSink{d: d, pending: map[uint64][]wal.Entry{}}, nil
}

// Offset reports the append offset of this sink's local WAL, the value
// a replica reports back to the master as last_applied_offset.
func (s *ReplicaSink) Offset() uint64 { return s.d.wal.Offset() }

// Apply appends entry to the local WAL and, on a commit marker, applies
// every buffered mutation belonging to that transaction to the store and
// indexes, mirroring wal.Replay's state machine.
func (s *ReplicaSink) Apply(entry wal.Entry) error {
	if _, err := s.d.wal.Append(entry.Type, entry.Payload); err != nil {
		return err
	}

	switch entry.Type {
	case wal.EntryBeginTxn:
		txnID := wal.DecodeBeginTxn(entry.Payload)
		s.pending[txnID] = nil

	case wal.EntryCommitTxn:
		txnID := wal.DecodeTxnMarker(entry.Payload)
		rec := txn.NewRecovery(s.d.store)
		for _, m := range s.pending[txnID] {
			if err := rec.ApplyMutation(txnID, m); err != nil {
				return err
			}
		}
		delete(s.pending, txnID)
		s.d.mgr.AdvanceNextID(txnID + 1)
		if err := s.d.wal.Sync(); err != nil {
			return err
		}

	case wal.EntryAbortTxn:
		txnID := wal.DecodeTxnMarker(entry.Payload)
		delete(s.pending, txnID)

	case wal.EntryCheckpoint:
		// Informational only here; the replica's own checkpoint/truncation
		// policy runs independently of the master's.

	default:
		h, _ := wal.SplitMutationHeader(entry.Payload)
		s.pending[h.TxnID] = append(s.pending[h.TxnID], entry)
	}
	return nil
}
