// Package index implements Nexus's three index structures: a roaring
// bitmap per label for fast label scans, a bbolt-backed b-tree for
// (label,property) and (type,property) equality/range seeks, and an
// HNSW graph for approximate nearest-neighbor vector search. Adjacency
// itself is not here — it lives inline in pkg/storage's relationship
// records, per spec.md §4.8.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// LabelBitmap is one roaring bitmap per label, persisted as one file
// per label under dir. Membership changes (node create/delete, label
// add/remove) apply synchronously, matching spec.md §4.8's "updated
// synchronously" requirement.
type LabelBitmap struct {
	mu      sync.RWMutex
	dir     string
	bitmaps map[types.LabelID]*roaring.Bitmap
}

// OpenLabelBitmap loads every *.bitmap file under dir into memory.
func OpenLabelBitmap(dir string) (*LabelBitmap, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.OpenLabelBitmap", err)
	}
	lb := &LabelBitmap{dir: dir, bitmaps: map[types.LabelID]*roaring.Bitmap{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.OpenLabelBitmap", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".bitmap" {
			continue
		}
		var labelID uint32
		if _, err := fmt.Sscanf(e.Name(), "label-%d.bitmap", &labelID); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.OpenLabelBitmap", err)
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(data); err != nil {
			return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeCorruption, "index.OpenLabelBitmap", err)
		}
		lb.bitmaps[types.LabelID(labelID)] = bm
	}
	return lb, nil
}

func labelFileName(label types.LabelID) string {
	return fmt.Sprintf("label-%d.bitmap", uint32(label))
}

// Add records node as carrying label, persisting the updated bitmap.
func (lb *LabelBitmap) Add(label types.LabelID, node types.NodeID) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	bm := lb.bitmaps[label]
	if bm == nil {
		bm = roaring.New()
		lb.bitmaps[label] = bm
	}
	bm.Add(uint32(node))
	return lb.persistLocked(label, bm)
}

// Remove records node as no longer carrying label.
func (lb *LabelBitmap) Remove(label types.LabelID, node types.NodeID) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	bm := lb.bitmaps[label]
	if bm == nil {
		return nil
	}
	bm.Remove(uint32(node))
	return lb.persistLocked(label, bm)
}

func (lb *LabelBitmap) persistLocked(label types.LabelID, bm *roaring.Bitmap) error {
	data, err := bm.MarshalBinary()
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.LabelBitmap.persist", err)
	}
	path := filepath.Join(lb.dir, labelFileName(label))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.LabelBitmap.persist", err)
	}
	return nil
}

// Nodes returns every node id currently carrying label, for
// NodeByLabelScan.
func (lb *LabelBitmap) Nodes(label types.LabelID) []types.NodeID {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	bm := lb.bitmaps[label]
	if bm == nil {
		return nil
	}
	ids := bm.ToArray()
	out := make([]types.NodeID, len(ids))
	for i, id := range ids {
		out[i] = types.NodeID(id)
	}
	return out
}

// Count reports the cardinality of label's bitmap, used by the
// planner's cost model to estimate NodeByLabelScan selectivity.
func (lb *LabelBitmap) Count(label types.LabelID) uint64 {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	bm := lb.bitmaps[label]
	if bm == nil {
		return 0
	}
	return bm.GetCardinality()
}

// Has reports whether node carries label, per the bitmap's current
// state (used to double-check an index-seek result against
// concurrent deletes before returning it to the executor).
func (lb *LabelBitmap) Has(label types.LabelID, node types.NodeID) bool {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	bm := lb.bitmaps[label]
	return bm != nil && bm.Contains(uint32(node))
}
