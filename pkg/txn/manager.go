package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/storage"
	"github.com/nexusdb/nexus/pkg/wal"
	"github.com/rs/zerolog"
)

// lockPollInterval bounds how often Begin retries TryLock/TryRLock while
// waiting for its deadline. Short enough that a txn starts promptly once
// the writer releases, long enough not to burn a core spinning.
const lockPollInterval = 500 * time.Microsecond

// defaultBeginTimeout applies when a caller's context carries no
// deadline of its own.
const defaultBeginTimeout = 30 * time.Second

// Manager serializes writers against one database: a single writer at a
// time (Lock), any number of concurrent readers (RLock), all guarding
// the same WAL and GraphStore. Every Txn is born from, and returns
// through, exactly one Manager.
type Manager struct {
	mu     sync.RWMutex
	nextID atomic.Uint64

	wal   *wal.WAL
	store *storage.GraphStore
	idx   *index.Manager

	log zerolog.Logger
}

// NewManager wires a Manager to an already-open WAL and GraphStore.
// Callers are expected to have run wal.Replay against store (through a
// Recovery sink) before constructing the Manager that will append new
// entries past the replayed offset. idx may be nil, in which case
// transactions skip index maintenance entirely (used by tests that
// only exercise storage/WAL behavior).
func NewManager(w *wal.WAL, store *storage.GraphStore, idx *index.Manager, nextTxnID uint64) *Manager {
	m := &Manager{wal: w, store: store, idx: idx, log: log.WithComponent("txn")}
	m.nextID.Store(nextTxnID)
	return m
}

// Begin starts a transaction. writable==true acquires the manager's
// exclusive lock (single writer); writable==false acquires it shared,
// allowing concurrent readers to proceed alongside the current writer's
// uncommitted-but-already-applied mutations being invisible to them
// (reads only ever see committed state because a writer holds the
// exclusive lock for its entire lifetime, not just at commit).
//
// If ctx carries a deadline, Begin polls until it elapses and returns a
// CodeTxnTimeout error; with no deadline it uses defaultBeginTimeout
// rather than blocking forever.
func (m *Manager) Begin(ctx context.Context, writable bool) (*Txn, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultBeginTimeout)
	}

	for {
		var acquired bool
		if writable {
			acquired = m.mu.TryLock()
		} else {
			acquired = m.mu.TryRLock()
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return nil, nexuserr.New(nexuserr.KindTxn, nexuserr.CodeTxnTimeout, "txn.Begin",
				"timed out waiting for transaction lock")
		}
		select {
		case <-ctx.Done():
			return nil, nexuserr.Wrap(nexuserr.KindTxn, nexuserr.CodeTxnTimeout, "txn.Begin", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	id := m.nextID.Add(1)
	if writable {
		// Read-only transactions never mutate anything, so they have
		// nothing for recovery to replay or drop — skip logging them.
		if _, err := m.wal.Append(wal.EntryBeginTxn, wal.EncodeBeginTxn(id)); err != nil {
			m.release(writable)
			return nil, err
		}
	}

	t := &Txn{
		mgr:      m,
		id:       id,
		writable: writable,
		log:      log.WithTxn(id),
	}
	return t, nil
}

// AdvanceNextID bumps the manager's transaction id counter past id, if it
// isn't already — used by a replica applying streamed entries, so that a
// later promotion to master continues the id sequence rather than
// reissuing ids the replicated stream already used.
func (m *Manager) AdvanceNextID(id uint64) {
	for {
		cur := m.nextID.Load()
		if id <= cur {
			return
		}
		if m.nextID.CompareAndSwap(cur, id) {
			return
		}
	}
}

func (m *Manager) release(writable bool) {
	if writable {
		m.mu.Unlock()
	} else {
		m.mu.RUnlock()
	}
}
