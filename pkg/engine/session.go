package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/txn"
	"github.com/nexusdb/nexus/pkg/types"
)

// TxnHandle identifies one multi-statement transaction started through
// Engine.BeginTxn, per spec.md §6's begin_txn(db, deadline) → TxnHandle.
type TxnHandle struct {
	ID       string
	Database string
}

// openTxn is what Engine.sess actually tracks per handle: the live *txn.Txn
// plus the database it was begun against, since ExecuteTxn needs both to
// route a subsequent statement through the same database's Executor.
type openTxn struct {
	db *database
	t  *txn.Txn
}

// BeginTxn opens a transaction against db and returns a handle a caller
// threads through ExecuteTxn/Commit/Rollback. writable must match what
// every statement run against the handle will need — Nexus has no
// upgrade-read-to-write path mid-transaction, since Manager.Begin's
// single-writer lock is acquired once, at Begin.
func (e *Engine) BeginTxn(ctx context.Context, db string, writable bool) (*TxnHandle, error) {
	d, err := e.acquireDatabase(db)
	if err != nil {
		return nil, err
	}
	t, err := d.mgr.Begin(ctx, writable)
	if err != nil {
		return nil, err
	}

	h := &TxnHandle{ID: uuid.New().String(), Database: db}
	e.sessMu.Lock()
	e.sess[h.ID] = &openTxn{db: d, t: t}
	e.sessMu.Unlock()
	return h, nil
}

// ExecuteTxn runs one statement against a transaction previously opened
// with BeginTxn, without committing — callers run as many statements as
// they like before a final Commit or Rollback.
func (e *Engine) ExecuteTxn(ctx context.Context, h *TxnHandle, src string, params map[string]types.Value) (*types.QueryResult, error) {
	ot, err := e.lookupTxn(h)
	if err != nil {
		return nil, err
	}
	return ot.db.exec.Run(ctx, src, ot.t, e.cat, params, e.procedures)
}

// Commit commits the transaction behind h and forgets the handle.
func (e *Engine) Commit(h *TxnHandle) error {
	ot, err := e.popTxn(h)
	if err != nil {
		return err
	}
	return ot.t.Commit()
}

// Rollback rolls back the transaction behind h and forgets the handle.
func (e *Engine) Rollback(h *TxnHandle) error {
	ot, err := e.popTxn(h)
	if err != nil {
		return err
	}
	return ot.t.Rollback()
}

func (e *Engine) lookupTxn(h *TxnHandle) (*openTxn, error) {
	e.sessMu.Lock()
	ot, ok := e.sess[h.ID]
	e.sessMu.Unlock()
	if !ok {
		return nil, nexuserr.New(nexuserr.KindTxn, nexuserr.CodeNotFound, "engine.lookupTxn", "no such transaction handle")
	}
	return ot, nil
}

func (e *Engine) popTxn(h *TxnHandle) (*openTxn, error) {
	e.sessMu.Lock()
	ot, ok := e.sess[h.ID]
	if ok {
		delete(e.sess, h.ID)
	}
	e.sessMu.Unlock()
	if !ok {
		return nil, nexuserr.New(nexuserr.KindTxn, nexuserr.CodeNotFound, "engine.popTxn", "no such transaction handle")
	}
	return ot, nil
}
