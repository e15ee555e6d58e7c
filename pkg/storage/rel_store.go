package storage

import (
	"path/filepath"
	"sync"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// RelStore is the fixed-width mmap record store for relationships, per
// spec.md §4.2. Each record participates in two doubly-linked adjacency
// lists (one rooted at its source node, one at its target), letting
// GraphStore splice a deletion out in O(1) without rewriting the whole
// list.
type RelStore struct {
	mu   sync.Mutex
	recs *mmapFile
	free []uint64
}

func openRelStore(dir string) (*RelStore, error) {
	recs, err := openMmapFile(filepath.Join(dir, "rels.store"), RelRecordSize)
	if err != nil {
		return nil, err
	}
	rs := &RelStore{recs: recs}
	rs.free = scanFreeSlots(recs, func(b []byte) bool { return b[0] == 0 })
	return rs, nil
}

func (rs *RelStore) allocateID() (uint64, error) {
	if n := len(rs.free); n > 0 {
		id := rs.free[n-1]
		rs.free = rs.free[:n-1]
		return id, nil
	}
	id := rs.recs.recordCount()
	if err := rs.recs.ensureCapacity(id); err != nil {
		return 0, err
	}
	return id, nil
}

// Allocate reserves a relationship id and writes rec into it. Callers are
// responsible for splicing the new id into the source/target adjacency
// lists (GraphStore.CreateRelationship does this under the same lock as
// the node record updates it requires).
func (rs *RelStore) Allocate(rec relRecord) (types.RelID, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	id, err := rs.allocateID()
	if err != nil {
		return 0, err
	}
	rec.InUse = true
	encodeRelRecord(rs.recs.record(id), rec)
	return types.RelID(id), nil
}

// AllocateAt writes rec at a specific id, bypassing the free list. See
// NodeStore.AllocateAt.
func (rs *RelStore) AllocateAt(id types.RelID, rec relRecord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.recs.ensureCapacity(uint64(id)); err != nil {
		return err
	}
	rec.InUse = true
	encodeRelRecord(rs.recs.record(uint64(id)), rec)
	for i, f := range rs.free {
		if f == uint64(id) {
			rs.free = append(rs.free[:i], rs.free[i+1:]...)
			break
		}
	}
	return nil
}

func (rs *RelStore) Read(id types.RelID) (relRecord, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.readLocked(id)
}

func (rs *RelStore) readLocked(id types.RelID) (relRecord, error) {
	if uint64(id) >= rs.recs.recordCount() {
		return relRecord{}, nexuserr.New(nexuserr.KindStorage, nexuserr.CodeNotFound, "storage.RelStore.Read", "relationship not found")
	}
	rec := decodeRelRecord(rs.recs.record(uint64(id)))
	if !rec.InUse {
		return relRecord{}, nexuserr.New(nexuserr.KindStorage, nexuserr.CodeNotFound, "storage.RelStore.Read", "relationship not found")
	}
	return rec, nil
}

func (rs *RelStore) Update(id types.RelID, rec relRecord) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, err := rs.readLocked(id); err != nil {
		return err
	}
	rec.InUse = true
	encodeRelRecord(rs.recs.record(uint64(id)), rec)
	return nil
}

func (rs *RelStore) Delete(id types.RelID) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, err := rs.readLocked(id); err != nil {
		return err
	}
	encodeRelRecord(rs.recs.record(uint64(id)), relRecord{})
	rs.free = append(rs.free, uint64(id))
	return nil
}

// Count returns the number of in-use relationship records, for stats
// reporting.
func (rs *RelStore) Count() uint64 {
	var n uint64
	rs.mu.Lock()
	recordCount := rs.recs.recordCount()
	for i := uint64(0); i < recordCount; i++ {
		if decodeRelRecord(rs.recs.record(i)).InUse {
			n++
		}
	}
	rs.mu.Unlock()
	return n
}

func (rs *RelStore) sync() error  { return rs.recs.sync() }
func (rs *RelStore) close() error { return rs.recs.close() }
