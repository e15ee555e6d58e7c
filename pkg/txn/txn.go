package txn

import (
	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/storage"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/nexusdb/nexus/pkg/wal"
	"github.com/rs/zerolog"
)

// undoFn reverses one already-applied mutation. Undo functions run in
// reverse order on Rollback, so the net effect always unwinds to the
// state the Txn began in.
type undoFn func() error

// pendingNodeDelete captures the state a deferred node delete needs to
// remove from every index once it is actually performed at Commit.
type pendingNodeDelete struct {
	id     types.NodeID
	labels []types.LabelID
	props  map[types.PropertyKeyID]types.Value
}

// pendingRelDelete mirrors pendingNodeDelete for relationships.
type pendingRelDelete struct {
	id      types.RelID
	relType types.RelTypeID
	props   map[types.PropertyKeyID]types.Value
}

// Txn is one transaction against a Manager's GraphStore. Create/Set
// operations apply to the store immediately and push an undo closure;
// Delete operations are only queued here and performed for real during
// Commit, after the commit marker is durable, so a Rollback never has to
// worry about a deleted record's slot having already been handed to a
// new entity.
type Txn struct {
	mgr      *Manager
	id       uint64
	writable bool
	done     bool

	undo           []undoFn
	pendingNodeDel []pendingNodeDelete
	pendingRelDel  []pendingRelDelete
	deletedNodes   map[types.NodeID]bool
	deletedRels    map[types.RelID]bool

	log zerolog.Logger
}

// Store exposes the underlying GraphStore for read-only access — scans
// and expands in pkg/executor read through it directly, since reads
// within a Txn always see the Manager's current committed state (see
// Manager.Begin).
func (t *Txn) Store() *storage.GraphStore { return t.mgr.store }

// Index exposes the index manager for read-only access (IndexSeek,
// vector search). May be nil if the owning Manager was built without
// one.
func (t *Txn) Index() *index.Manager { return t.mgr.idx }

func (t *Txn) requireWritable(op string) error {
	if t.done {
		return nexuserr.New(nexuserr.KindTxn, nexuserr.CodeTxnAborted, op, "transaction already finished")
	}
	if !t.writable {
		return nexuserr.New(nexuserr.KindTxn, nexuserr.CodeTxnConflict, op, "transaction is read-only")
	}
	return nil
}

func (t *Txn) appendMutation(entryType wal.EntryType, entityID uint64, tail []byte) error {
	payload := wal.EncodeMutationHeader(wal.MutationHeader{TxnID: t.id, EntityID: entityID}, tail)
	_, err := t.mgr.wal.Append(entryType, payload)
	return err
}

// CreateNode creates a node and logs it, returning the assembled Node.
func (t *Txn) CreateNode(labels []types.LabelID, props map[types.PropertyKeyID]types.Value) (*types.Node, error) {
	if err := t.requireWritable("txn.CreateNode"); err != nil {
		return nil, err
	}
	n, err := t.mgr.store.CreateNode(labels, props)
	if err != nil {
		return nil, err
	}
	if err := t.appendMutation(wal.EntryNodeCreate, uint64(n.ID), encodeNodePayload(labels, props)); err != nil {
		return nil, err
	}
	id := n.ID
	if t.mgr.idx != nil {
		if err := t.mgr.idx.OnNodeCreated(id, labels, props); err != nil {
			return nil, err
		}
	}
	t.undo = append(t.undo, func() error {
		if t.mgr.idx != nil {
			if err := t.mgr.idx.OnNodeDeleted(id, labels, props); err != nil {
				return err
			}
		}
		return t.mgr.store.DeleteNode(id)
	})
	return n, nil
}

// SetNodeProperties overwrites a node's property map, capturing the
// prior map so Rollback can restore it.
func (t *Txn) SetNodeProperties(id types.NodeID, props map[types.PropertyKeyID]types.Value) error {
	if err := t.requireWritable("txn.SetNodeProperties"); err != nil {
		return err
	}
	old, err := t.mgr.store.NodeProperties(id)
	if err != nil {
		return err
	}
	if err := t.mgr.store.SetNodeProperties(id, props); err != nil {
		return err
	}
	if err := t.appendMutation(wal.EntryPropSet, uint64(id), encodePropsPayload(props)); err != nil {
		return err
	}
	if t.mgr.idx != nil {
		labels, err := t.mgr.store.NodeLabels(id)
		if err != nil {
			return err
		}
		if err := t.mgr.idx.OnNodePropertiesChanged(id, labels, old, props); err != nil {
			return err
		}
	}
	t.undo = append(t.undo, func() error {
		if t.mgr.idx != nil {
			labels, err := t.mgr.store.NodeLabels(id)
			if err != nil {
				return err
			}
			if err := t.mgr.idx.OnNodePropertiesChanged(id, labels, props, old); err != nil {
				return err
			}
		}
		return t.mgr.store.SetNodeProperties(id, old)
	})
	return nil
}

// SetNodeLabels overwrites a node's label set, capturing the prior set
// for Rollback.
func (t *Txn) SetNodeLabels(id types.NodeID, labels []types.LabelID) error {
	if err := t.requireWritable("txn.SetNodeLabels"); err != nil {
		return err
	}
	old, err := t.mgr.store.NodeLabels(id)
	if err != nil {
		return err
	}
	if err := t.mgr.store.SetNodeLabels(id, labels); err != nil {
		return err
	}
	if err := t.appendMutation(wal.EntryNodeUpdate, uint64(id), encodeLabelsPayload(labels)); err != nil {
		return err
	}
	if t.mgr.idx != nil {
		props, err := t.mgr.store.NodeProperties(id)
		if err != nil {
			return err
		}
		if err := t.mgr.idx.OnNodeLabelsChanged(id, old, labels, props); err != nil {
			return err
		}
	}
	t.undo = append(t.undo, func() error {
		if t.mgr.idx != nil {
			props, err := t.mgr.store.NodeProperties(id)
			if err != nil {
				return err
			}
			if err := t.mgr.idx.OnNodeLabelsChanged(id, labels, old, props); err != nil {
				return err
			}
		}
		return t.mgr.store.SetNodeLabels(id, old)
	})
	return nil
}

// CreateRelationship creates a relationship and logs it.
func (t *Txn) CreateRelationship(relType types.RelTypeID, src, dst types.NodeID, props map[types.PropertyKeyID]types.Value) (*types.Relationship, error) {
	if err := t.requireWritable("txn.CreateRelationship"); err != nil {
		return nil, err
	}
	r, err := t.mgr.store.CreateRelationship(relType, src, dst, props)
	if err != nil {
		return nil, err
	}
	if err := t.appendMutation(wal.EntryRelCreate, uint64(r.ID), encodeRelPayload(relType, src, dst, props)); err != nil {
		return nil, err
	}
	id := r.ID
	if t.mgr.idx != nil {
		if err := t.mgr.idx.OnRelCreated(id, relType, props); err != nil {
			return nil, err
		}
	}
	t.undo = append(t.undo, func() error {
		if t.mgr.idx != nil {
			if err := t.mgr.idx.OnRelDeleted(id, relType, props); err != nil {
				return err
			}
		}
		return t.mgr.store.DeleteRelationship(id)
	})
	return r, nil
}

// DeleteNode queues a node for deletion. The delete is only performed
// physically during Commit; until then reads through this Txn should
// treat id as absent (IsNodeDeleted reports that).
func (t *Txn) DeleteNode(id types.NodeID) error {
	if err := t.requireWritable("txn.DeleteNode"); err != nil {
		return err
	}
	heads, err := t.mgr.store.NodeAdjacencyHeads(id)
	if err != nil {
		return err
	}
	if heads.FirstOutRel != types.InvalidID || heads.FirstInRel != types.InvalidID {
		return nexuserr.New(nexuserr.KindStorage, nexuserr.CodeStorageIO, "txn.DeleteNode",
			"node still has relationships attached")
	}
	labels, err := t.mgr.store.NodeLabels(id)
	if err != nil {
		return err
	}
	props, err := t.mgr.store.NodeProperties(id)
	if err != nil {
		return err
	}
	if err := t.appendMutation(wal.EntryNodeDelete, uint64(id), nil); err != nil {
		return err
	}
	if t.deletedNodes == nil {
		t.deletedNodes = map[types.NodeID]bool{}
	}
	t.deletedNodes[id] = true
	t.pendingNodeDel = append(t.pendingNodeDel, pendingNodeDelete{id: id, labels: labels, props: props})
	return nil
}

// DeleteRelationship queues a relationship for deletion, applied at
// Commit like DeleteNode.
func (t *Txn) DeleteRelationship(id types.RelID) error {
	if err := t.requireWritable("txn.DeleteRelationship"); err != nil {
		return err
	}
	rel, err := t.mgr.store.ReadRelationship(id)
	if err != nil {
		return err
	}
	if err := t.appendMutation(wal.EntryRelDelete, uint64(id), nil); err != nil {
		return err
	}
	if t.deletedRels == nil {
		t.deletedRels = map[types.RelID]bool{}
	}
	t.deletedRels[id] = true
	t.pendingRelDel = append(t.pendingRelDel, pendingRelDelete{id: id, relType: rel.Type, props: rel.Properties})
	return nil
}

// IsNodeDeleted reports whether id has been queued for deletion by this
// transaction but not yet committed — callers (the executor) use this to
// mask a pending delete out of reads made through the same Txn.
func (t *Txn) IsNodeDeleted(id types.NodeID) bool { return t.deletedNodes[id] }

// IsRelationshipDeleted mirrors IsNodeDeleted for relationships.
func (t *Txn) IsRelationshipDeleted(id types.RelID) bool { return t.deletedRels[id] }

// Commit durably fsyncs the commit marker, then performs any deferred
// deletes, syncs the store, and releases the manager's lock. Once
// Commit returns (with or without error) the Txn is finished and must
// not be used again.
func (t *Txn) Commit() error {
	if t.done {
		return nexuserr.New(nexuserr.KindTxn, nexuserr.CodeTxnAborted, "txn.Commit", "transaction already finished")
	}
	defer t.finish()

	if !t.writable {
		return nil
	}

	if _, err := t.mgr.wal.AppendCommit(t.id); err != nil {
		return err
	}

	for _, pending := range t.pendingRelDel {
		if err := t.mgr.store.DeleteRelationship(pending.id); err != nil {
			t.log.Error().Err(err).Uint64("rel_id", uint64(pending.id)).Msg("deferred relationship delete failed after commit")
			return err
		}
		if t.mgr.idx != nil {
			if err := t.mgr.idx.OnRelDeleted(pending.id, pending.relType, pending.props); err != nil {
				t.log.Error().Err(err).Uint64("rel_id", uint64(pending.id)).Msg("index cleanup failed after deferred relationship delete")
				return err
			}
		}
	}
	for _, pending := range t.pendingNodeDel {
		if err := t.mgr.store.DeleteNode(pending.id); err != nil {
			t.log.Error().Err(err).Uint64("node_id", uint64(pending.id)).Msg("deferred node delete failed after commit")
			return err
		}
		if t.mgr.idx != nil {
			if err := t.mgr.idx.OnNodeDeleted(pending.id, pending.labels, pending.props); err != nil {
				t.log.Error().Err(err).Uint64("node_id", uint64(pending.id)).Msg("index cleanup failed after deferred node delete")
				return err
			}
		}
	}

	return t.mgr.store.Sync()
}

// Rollback undoes every applied mutation in reverse order, discards any
// deferred deletes (which were never physically performed), appends an
// AbortTxn marker and releases the lock.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	defer t.finish()

	if !t.writable {
		return nil
	}

	var firstErr error
	for i := len(t.undo) - 1; i >= 0; i-- {
		if err := t.undo[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if _, err := t.mgr.wal.Append(wal.EntryAbortTxn, wal.EncodeTxnMarker(t.id)); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.mgr.wal.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (t *Txn) finish() {
	t.done = true
	t.mgr.release(t.writable)
}
