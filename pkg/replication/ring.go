package replication

import (
	"sort"
	"sync"

	"github.com/nexusdb/nexus/pkg/wal"
)

// defaultRingCapacity is the default number of WAL entries the master
// retains in memory for replica catch-up, per spec.md §4.9.
const defaultRingCapacity = 1_000_000

// ringItem is one retained WAL entry, tagged with the byte offset it was
// read from in the master's log.
type ringItem struct {
	offset uint64
	entry  wal.Entry
}

// walRing is the master's circular in-memory log of the last N committed
// WAL entries for one database: cheap catch-up for a replica that
// reconnects with a recent offset, without re-reading the WAL file. A
// replica whose requested offset precedes everything the ring retains
// must be sent a snapshot instead.
type walRing struct {
	mu       sync.Mutex
	capacity int
	items    []ringItem
}

func newWalRing(capacity int) *walRing {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &walRing{capacity: capacity}
}

// push appends item, evicting the oldest retained entry once at capacity.
func (r *walRing) push(item ringItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.capacity {
		r.items = r.items[len(r.items)-r.capacity:]
	}
}

// since returns every retained entry with offset strictly greater than
// afterOffset, in order. ok is false when entries after afterOffset may
// already have been evicted, so the caller needs a snapshot instead:
// afterOffset precedes the oldest retained entry, or afterOffset is 0
// and the ring is full. An empty ring reports ok with nothing to send.
func (r *walRing) since(afterOffset uint64) (items []ringItem, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return nil, true
	}
	oldest := r.items[0].offset
	if afterOffset < oldest && (afterOffset != 0 || len(r.items) == r.capacity) {
		return nil, false
	}

	idx := sort.Search(len(r.items), func(i int) bool { return r.items[i].offset > afterOffset })
	out := make([]ringItem, len(r.items)-idx)
	copy(out, r.items[idx:])
	return out, true
}

// tip returns the offset of the most recently pushed entry, or 0 if the
// ring is empty.
func (r *walRing) tip() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return 0
	}
	return r.items[len(r.items)-1].offset
}
