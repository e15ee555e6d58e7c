package storage

import (
	"path/filepath"
	"sync"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// NodeStore is the fixed-width mmap record store for nodes, per spec.md
// §4.2. Each record id is the node's NodeID; deleted ids are tracked on a
// free list and reissued by the next Allocate call.
type NodeStore struct {
	mu   sync.Mutex
	recs *mmapFile
	free []uint64
}

func openNodeStore(dir string) (*NodeStore, error) {
	recs, err := openMmapFile(filepath.Join(dir, "nodes.store"), NodeRecordSize)
	if err != nil {
		return nil, err
	}
	ns := &NodeStore{recs: recs}
	ns.free = scanFreeSlots(recs, func(b []byte) bool { return b[0] == 0 })
	return ns, nil
}

// Allocate reserves a node id, reusing a freed slot when one is available,
// and writes rec into it.
func (ns *NodeStore) Allocate(rec nodeRecord) (types.NodeID, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	var id uint64
	if n := len(ns.free); n > 0 {
		id = ns.free[n-1]
		ns.free = ns.free[:n-1]
	} else {
		id = ns.recs.recordCount()
		if err := ns.recs.ensureCapacity(id); err != nil {
			return 0, err
		}
	}
	rec.InUse = true
	encodeNodeRecord(ns.recs.record(id), rec)
	return types.NodeID(id), nil
}

// AllocateAt writes rec at a specific id, bypassing the free list. Used
// only by WAL replay to reproduce a node id that was already handed out
// before a crash, since later mutation entries reference it by that id.
func (ns *NodeStore) AllocateAt(id types.NodeID, rec nodeRecord) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if err := ns.recs.ensureCapacity(uint64(id)); err != nil {
		return err
	}
	rec.InUse = true
	encodeNodeRecord(ns.recs.record(uint64(id)), rec)
	for i, f := range ns.free {
		if f == uint64(id) {
			ns.free = append(ns.free[:i], ns.free[i+1:]...)
			break
		}
	}
	return nil
}

// Read returns the raw record for id, or CodeNodeNotFound if it does not
// exist or has been deleted.
func (ns *NodeStore) Read(id types.NodeID) (nodeRecord, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.readLocked(id)
}

func (ns *NodeStore) readLocked(id types.NodeID) (nodeRecord, error) {
	if uint64(id) >= ns.recs.recordCount() {
		return nodeRecord{}, nexuserr.New(nexuserr.KindStorage, nexuserr.CodeNotFound, "storage.NodeStore.Read", "node not found")
	}
	rec := decodeNodeRecord(ns.recs.record(uint64(id)))
	if !rec.InUse {
		return nodeRecord{}, nexuserr.New(nexuserr.KindStorage, nexuserr.CodeNotFound, "storage.NodeStore.Read", "node not found")
	}
	return rec, nil
}

// Update overwrites an existing node record in place.
func (ns *NodeStore) Update(id types.NodeID, rec nodeRecord) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, err := ns.readLocked(id); err != nil {
		return err
	}
	rec.InUse = true
	encodeNodeRecord(ns.recs.record(uint64(id)), rec)
	return nil
}

// Delete clears the in_use flag and returns id to the free list.
func (ns *NodeStore) Delete(id types.NodeID) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, err := ns.readLocked(id); err != nil {
		return err
	}
	encodeNodeRecord(ns.recs.record(uint64(id)), nodeRecord{})
	ns.free = append(ns.free, uint64(id))
	return nil
}

// ForEach calls fn for every in-use node record, in id order, skipping
// free slots. Used by AllNodesScan.
func (ns *NodeStore) ForEach(fn func(id types.NodeID, rec nodeRecord) error) error {
	ns.mu.Lock()
	count := ns.recs.recordCount()
	ns.mu.Unlock()

	for i := uint64(0); i < count; i++ {
		ns.mu.Lock()
		rec := decodeNodeRecord(ns.recs.record(i))
		ns.mu.Unlock()
		if !rec.InUse {
			continue
		}
		if err := fn(types.NodeID(i), rec); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of in-use node records, for stats reporting.
func (ns *NodeStore) Count() uint64 {
	var n uint64
	ns.mu.Lock()
	recordCount := ns.recs.recordCount()
	for i := uint64(0); i < recordCount; i++ {
		if decodeNodeRecord(ns.recs.record(i)).InUse {
			n++
		}
	}
	ns.mu.Unlock()
	return n
}

func (ns *NodeStore) sync() error { return ns.recs.sync() }
func (ns *NodeStore) close() error { return ns.recs.close() }
