package storage

import (
	"os"
	"path/filepath"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// GraphStore is the durable on-disk graph: nodes, relationships and their
// properties, wired together the way spec.md §4.2 describes — fixed-width
// mmap stores for the entity records themselves, a chained property store
// for their dynamic attributes, and a small side file for each node's
// label set. It has no knowledge of Cypher, transactions or the WAL; the
// transaction manager in pkg/txn applies each mutation through it and then
// appends the matching WAL entry, and on replay applies only entries of
// committed transactions.
type GraphStore struct {
	dir    string
	nodes  *NodeStore
	rels   *RelStore
	props  *PropertyStore
	labels *overflowFile // append-only store of label lists, one per node generation
}

// Open opens (creating if absent) the node, relationship and property
// stores, the property overflow file and the label store under dir.
func Open(dir string) (*GraphStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.Open", err)
	}
	nodes, err := openNodeStore(dir)
	if err != nil {
		return nil, err
	}
	rels, err := openRelStore(dir)
	if err != nil {
		nodes.close()
		return nil, err
	}
	props, err := openPropertyStore(dir)
	if err != nil {
		nodes.close()
		rels.close()
		return nil, err
	}
	labels, err := openOverflowFile(filepath.Join(dir, "labels.store"))
	if err != nil {
		nodes.close()
		rels.close()
		props.close()
		return nil, err
	}
	return &GraphStore{dir: dir, nodes: nodes, rels: rels, props: props, labels: labels}, nil
}

func (gs *GraphStore) Close() error {
	errs := []error{gs.nodes.close(), gs.rels.close(), gs.props.close(), gs.labels.close()}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Sync flushes every backing file to stable storage; callers do this after
// a WAL fsync on transaction commit, not on every write.
func (gs *GraphStore) Sync() error {
	if err := gs.nodes.sync(); err != nil {
		return err
	}
	if err := gs.rels.sync(); err != nil {
		return err
	}
	if err := gs.props.sync(); err != nil {
		return err
	}
	return gs.labels.sync()
}

// NodeCount and RelCount answer the engine's stats(db) contract; both scan
// their store's in-use flags, so callers shouldn't poll them on a hot path.
func (gs *GraphStore) NodeCount() uint64 { return gs.nodes.Count() }
func (gs *GraphStore) RelCount() uint64  { return gs.rels.Count() }

func encodeLabelList(labels []types.LabelID) []byte {
	buf := make([]byte, 4*len(labels))
	for i, l := range labels {
		be.PutUint32(buf[i*4:i*4+4], uint32(l))
	}
	return buf
}

func decodeLabelList(data []byte) []types.LabelID {
	out := make([]types.LabelID, len(data)/4)
	for i := range out {
		out[i] = types.LabelID(be.Uint32(data[i*4 : i*4+4]))
	}
	return out
}

// writeLabels appends a new label-list blob and returns its pointer. Like
// the overflow property store, old blobs are never reclaimed; a node's
// label set changes rarely compared to its properties.
func (gs *GraphStore) writeLabels(labels []types.LabelID) (uint64, error) {
	data := encodeLabelList(labels)
	ptr, err := gs.labels.write(data)
	if err != nil {
		return 0, err
	}
	return ptr, nil
}

func (gs *GraphStore) readLabels(rec nodeRecord) ([]types.LabelID, error) {
	if rec.LabelCount == 0 {
		return nil, nil
	}
	data, err := gs.labels.read(rec.LabelListPtr, uint64(rec.LabelCount)*4)
	if err != nil {
		return nil, err
	}
	return decodeLabelList(data), nil
}

// CreateNode allocates a node record, writes its property chain and its
// label list, and returns the assembled logical Node.
func (gs *GraphStore) CreateNode(labels []types.LabelID, props map[types.PropertyKeyID]types.Value) (*types.Node, error) {
	firstProp, err := gs.props.WriteChain(props)
	if err != nil {
		return nil, err
	}
	ptr, err := gs.writeLabels(labels)
	if err != nil {
		return nil, err
	}
	rec := nodeRecord{
		FirstOutRel:  types.InvalidID,
		FirstInRel:   types.InvalidID,
		FirstPropID:  firstProp,
		LabelListPtr: ptr,
		LabelCount:   uint32(len(labels)),
	}
	id, err := gs.nodes.Allocate(rec)
	if err != nil {
		return nil, err
	}
	return &types.Node{ID: id, Labels: labels, Properties: props}, nil
}

// CreateNodeAt recreates a node at a specific id during WAL replay; see
// NodeStore.AllocateAt.
func (gs *GraphStore) CreateNodeAt(id types.NodeID, labels []types.LabelID, props map[types.PropertyKeyID]types.Value) error {
	firstProp, err := gs.props.WriteChain(props)
	if err != nil {
		return err
	}
	ptr, err := gs.writeLabels(labels)
	if err != nil {
		return err
	}
	return gs.nodes.AllocateAt(id, nodeRecord{
		FirstOutRel:  types.InvalidID,
		FirstInRel:   types.InvalidID,
		FirstPropID:  firstProp,
		LabelListPtr: ptr,
		LabelCount:   uint32(len(labels)),
	})
}

// ReadNode assembles the logical Node for id.
func (gs *GraphStore) ReadNode(id types.NodeID) (*types.Node, error) {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return nil, err
	}
	props, err := gs.props.ReadChain(rec.FirstPropID)
	if err != nil {
		return nil, err
	}
	labels, err := gs.readLabels(rec)
	if err != nil {
		return nil, err
	}
	return &types.Node{ID: id, Labels: labels, Properties: props}, nil
}

// AllNodeIDs returns every live node id in storage order, skipping free
// slots. Backs AllNodesScan; callers needing properties/labels still go
// through ReadNode per id.
func (gs *GraphStore) AllNodeIDs() ([]types.NodeID, error) {
	var ids []types.NodeID
	err := gs.nodes.ForEach(func(id types.NodeID, _ nodeRecord) error {
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// NodeProperties reads just a node's property map, without its labels —
// used where the caller already has (or doesn't need) the label set, such
// as pkg/txn capturing the pre-image of a property before an undoable SET.
func (gs *GraphStore) NodeProperties(id types.NodeID) (map[types.PropertyKeyID]types.Value, error) {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return nil, err
	}
	return gs.props.ReadChain(rec.FirstPropID)
}

// NodeLabels reads just a node's current label set.
func (gs *GraphStore) NodeLabels(id types.NodeID) ([]types.LabelID, error) {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return nil, err
	}
	return gs.readLabels(rec)
}

// SetNodeProperties replaces a node's entire property map.
func (gs *GraphStore) SetNodeProperties(id types.NodeID, props map[types.PropertyKeyID]types.Value) error {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return err
	}
	oldHead := rec.FirstPropID
	newHead, err := gs.props.WriteChain(props)
	if err != nil {
		return err
	}
	rec.FirstPropID = newHead
	if err := gs.nodes.Update(id, rec); err != nil {
		return err
	}
	gs.props.FreeChain(oldHead)
	return nil
}

// SetNodeLabels replaces a node's label set.
func (gs *GraphStore) SetNodeLabels(id types.NodeID, labels []types.LabelID) error {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return err
	}
	ptr, err := gs.writeLabels(labels)
	if err != nil {
		return err
	}
	rec.LabelListPtr = ptr
	rec.LabelCount = uint32(len(labels))
	return gs.nodes.Update(id, rec)
}

// DeleteNode removes a node record and frees its property chain. Callers
// must ensure (per spec.md's DETACH DELETE semantics) that no
// relationships reference it first.
func (gs *GraphStore) DeleteNode(id types.NodeID) error {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return err
	}
	if rec.FirstOutRel != types.InvalidID || rec.FirstInRel != types.InvalidID {
		return nexuserr.New(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.DeleteNode",
			"node still has relationships attached")
	}
	if err := gs.nodes.Delete(id); err != nil {
		return err
	}
	gs.props.FreeChain(rec.FirstPropID)
	return nil
}

// CreateRelationship allocates a relationship record and splices it into
// both endpoints' adjacency lists in O(1).
func (gs *GraphStore) CreateRelationship(relType types.RelTypeID, src, dst types.NodeID, props map[types.PropertyKeyID]types.Value) (*types.Relationship, error) {
	firstProp, err := gs.props.WriteChain(props)
	if err != nil {
		return nil, err
	}

	srcRec, err := gs.nodes.Read(src)
	if err != nil {
		return nil, err
	}
	dstRec, err := gs.nodes.Read(dst)
	if err != nil {
		return nil, err
	}

	rec := relRecord{
		TypeID:      relType,
		Source:      uint64(src),
		Target:      uint64(dst),
		SrcPrev:     types.InvalidID,
		SrcNext:     srcRec.FirstOutRel,
		TgtPrev:     types.InvalidID,
		TgtNext:     dstRec.FirstInRel,
		FirstPropID: firstProp,
	}
	id, err := gs.rels.Allocate(rec)
	if err != nil {
		return nil, err
	}

	if srcRec.FirstOutRel != types.InvalidID {
		head, err := gs.rels.Read(types.RelID(srcRec.FirstOutRel))
		if err != nil {
			return nil, err
		}
		head.SrcPrev = uint64(id)
		if err := gs.rels.Update(types.RelID(srcRec.FirstOutRel), head); err != nil {
			return nil, err
		}
	}
	srcRec.FirstOutRel = uint64(id)
	if err := gs.nodes.Update(src, srcRec); err != nil {
		return nil, err
	}

	if dstRec.FirstInRel != types.InvalidID {
		head, err := gs.rels.Read(types.RelID(dstRec.FirstInRel))
		if err != nil {
			return nil, err
		}
		head.TgtPrev = uint64(id)
		if err := gs.rels.Update(types.RelID(dstRec.FirstInRel), head); err != nil {
			return nil, err
		}
	}
	dstRec.FirstInRel = uint64(id)
	if err := gs.nodes.Update(dst, dstRec); err != nil {
		return nil, err
	}

	return &types.Relationship{ID: id, Type: relType, Start: src, End: dst, Properties: props}, nil
}

// RelationshipsFrom returns every relationship whose adjacency list
// pointer chains through the node's FirstOutRel or FirstInRel, used by
// the executor's expand operator. dir
// selects which chain to walk.
func (gs *GraphStore) RelationshipsFrom(node *nodeRecordView, dir types.Direction) ([]types.RelID, error) {
	var ids []types.RelID
	walk := func(head uint64, next func(relRecord) uint64) error {
		id := head
		for id != types.InvalidID {
			ids = append(ids, types.RelID(id))
			rec, err := gs.rels.Read(types.RelID(id))
			if err != nil {
				return err
			}
			id = next(rec)
		}
		return nil
	}
	if dir == types.DirOutgoing || dir == types.DirBoth {
		if err := walk(node.FirstOutRel, func(r relRecord) uint64 { return r.SrcNext }); err != nil {
			return nil, err
		}
	}
	if dir == types.DirIncoming || dir == types.DirBoth {
		if err := walk(node.FirstInRel, func(r relRecord) uint64 { return r.TgtNext }); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// nodeRecordView exposes a node's adjacency heads to callers outside the
// package (pkg/txn's node cache) without exporting the raw record layout.
type nodeRecordView struct {
	FirstOutRel uint64
	FirstInRel  uint64
}

// NodeAdjacencyHeads returns id's FirstOutRel/FirstInRel pointers.
func (gs *GraphStore) NodeAdjacencyHeads(id types.NodeID) (*nodeRecordView, error) {
	rec, err := gs.nodes.Read(id)
	if err != nil {
		return nil, err
	}
	return &nodeRecordView{FirstOutRel: rec.FirstOutRel, FirstInRel: rec.FirstInRel}, nil
}

// CreateRelationshipAt recreates a relationship at a specific id during
// WAL replay, splicing it into both endpoints' adjacency lists exactly as
// CreateRelationship would have at the time it first ran.
func (gs *GraphStore) CreateRelationshipAt(id types.RelID, relType types.RelTypeID, src, dst types.NodeID, props map[types.PropertyKeyID]types.Value) error {
	firstProp, err := gs.props.WriteChain(props)
	if err != nil {
		return err
	}
	srcRec, err := gs.nodes.Read(src)
	if err != nil {
		return err
	}
	dstRec, err := gs.nodes.Read(dst)
	if err != nil {
		return err
	}
	rec := relRecord{
		TypeID:      relType,
		Source:      uint64(src),
		Target:      uint64(dst),
		SrcPrev:     types.InvalidID,
		SrcNext:     srcRec.FirstOutRel,
		TgtPrev:     types.InvalidID,
		TgtNext:     dstRec.FirstInRel,
		FirstPropID: firstProp,
	}
	if err := gs.rels.AllocateAt(id, rec); err != nil {
		return err
	}
	if srcRec.FirstOutRel != types.InvalidID {
		head, err := gs.rels.Read(types.RelID(srcRec.FirstOutRel))
		if err != nil {
			return err
		}
		head.SrcPrev = uint64(id)
		if err := gs.rels.Update(types.RelID(srcRec.FirstOutRel), head); err != nil {
			return err
		}
	}
	srcRec.FirstOutRel = uint64(id)
	if err := gs.nodes.Update(src, srcRec); err != nil {
		return err
	}
	if dstRec.FirstInRel != types.InvalidID {
		head, err := gs.rels.Read(types.RelID(dstRec.FirstInRel))
		if err != nil {
			return err
		}
		head.TgtPrev = uint64(id)
		if err := gs.rels.Update(types.RelID(dstRec.FirstInRel), head); err != nil {
			return err
		}
	}
	dstRec.FirstInRel = uint64(id)
	return gs.nodes.Update(dst, dstRec)
}

func (gs *GraphStore) ReadRelationship(id types.RelID) (*types.Relationship, error) {
	rec, err := gs.rels.Read(id)
	if err != nil {
		return nil, err
	}
	props, err := gs.props.ReadChain(rec.FirstPropID)
	if err != nil {
		return nil, err
	}
	return &types.Relationship{
		ID:         id,
		Type:       rec.TypeID,
		Start:      types.NodeID(rec.Source),
		End:        types.NodeID(rec.Target),
		Properties: props,
	}, nil
}

// DeleteRelationship splices id out of both adjacency lists and frees its
// property chain.
func (gs *GraphStore) DeleteRelationship(id types.RelID) error {
	rec, err := gs.rels.Read(id)
	if err != nil {
		return err
	}

	if err := gs.spliceOut(rec.SrcPrev, rec.SrcNext, true); err != nil {
		return err
	}
	if rec.SrcPrev == types.InvalidID {
		srcRec, err := gs.nodes.Read(types.NodeID(rec.Source))
		if err != nil {
			return err
		}
		srcRec.FirstOutRel = rec.SrcNext
		if err := gs.nodes.Update(types.NodeID(rec.Source), srcRec); err != nil {
			return err
		}
	}

	if err := gs.spliceOut(rec.TgtPrev, rec.TgtNext, false); err != nil {
		return err
	}
	if rec.TgtPrev == types.InvalidID {
		dstRec, err := gs.nodes.Read(types.NodeID(rec.Target))
		if err != nil {
			return err
		}
		dstRec.FirstInRel = rec.TgtNext
		if err := gs.nodes.Update(types.NodeID(rec.Target), dstRec); err != nil {
			return err
		}
	}

	if err := gs.rels.Delete(id); err != nil {
		return err
	}
	gs.props.FreeChain(rec.FirstPropID)
	return nil
}

// spliceOut removes a relationship from the middle of one adjacency list
// by reconnecting its prev and next neighbors to each other directly.
// srcSide selects whether the chain being patched is the source-rooted
// list (SrcPrev/SrcNext) or the target-rooted one (TgtPrev/TgtNext) — the
// two are independent lists even for the same pair of neighbor ids when a
// relationship is a self-loop.
func (gs *GraphStore) spliceOut(prev, next uint64, srcSide bool) error {
	if prev != types.InvalidID {
		prevRec, err := gs.rels.Read(types.RelID(prev))
		if err != nil {
			return err
		}
		if srcSide {
			prevRec.SrcNext = next
		} else {
			prevRec.TgtNext = next
		}
		if err := gs.rels.Update(types.RelID(prev), prevRec); err != nil {
			return err
		}
	}
	if next != types.InvalidID {
		nextRec, err := gs.rels.Read(types.RelID(next))
		if err != nil {
			return err
		}
		if srcSide {
			nextRec.SrcPrev = prev
		} else {
			nextRec.TgtPrev = prev
		}
		if err := gs.rels.Update(types.RelID(next), nextRec); err != nil {
			return err
		}
	}
	return nil
}
