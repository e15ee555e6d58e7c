package storage

import (
	"math"
	"path/filepath"
	"sync"

	"github.com/nexusdb/nexus/pkg/types"
)

// PropertyStore holds every entity's property chain: a linked list of
// fixed-size PropRecords, each either inlining its value or pointing into
// the append-only overflow file for long strings/lists/maps/vectors.
type PropertyStore struct {
	mu       sync.Mutex
	records  *mmapFile
	overflow *overflowFile
	free     []uint64
}

func openPropertyStore(dir string) (*PropertyStore, error) {
	records, err := openMmapFile(filepath.Join(dir, "properties.store"), PropRecordSize)
	if err != nil {
		return nil, err
	}
	overflow, err := openOverflowFile(filepath.Join(dir, "properties.overflow"))
	if err != nil {
		records.close()
		return nil, err
	}
	ps := &PropertyStore{records: records, overflow: overflow}
	ps.free = scanFreeSlots(records, func(b []byte) bool { return b[0] == 0 })
	return ps, nil
}

func (ps *PropertyStore) allocate() uint64 {
	if n := len(ps.free); n > 0 {
		id := ps.free[n-1]
		ps.free = ps.free[:n-1]
		return id
	}
	id := ps.records.recordCount()
	_ = ps.records.ensureCapacity(id)
	return id
}

// WriteChain replaces an entity's entire property chain (used for both the
// initial set on create and any subsequent SET/REMOVE) and returns the new
// head pointer, or types.InvalidID if props is empty. It returns only the
// new head and does not free the old chain; callers that are overwriting
// call FreeChain on the old head after installing the new one.
func (ps *PropertyStore) WriteChain(props map[types.PropertyKeyID]types.Value) (uint64, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if len(props) == 0 {
		return types.InvalidID, nil
	}

	keys := make([]types.PropertyKeyID, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}

	head := types.InvalidID
	for i := len(keys) - 1; i >= 0; i-- {
		k := keys[i]
		v := props[k]
		rec := propRecord{InUse: true, Kind: v.Kind, KeyID: k, NextPropID: head}
		if err := ps.inlineOrSpill(&rec, v); err != nil {
			return 0, err
		}
		id := ps.allocate()
		encodePropRecord(ps.records.record(id), rec)
		head = id
	}
	return head, nil
}

func (ps *PropertyStore) inlineOrSpill(rec *propRecord, v types.Value) error {
	switch v.Kind {
	case types.KindNull:
	case types.KindBool:
		if v.Bool {
			rec.InlineOrPtr = 1
		}
	case types.KindInt:
		rec.InlineOrPtr = uint64(v.Int)
	case types.KindFloat:
		rec.InlineOrPtr = math.Float64bits(v.Float)
	case types.KindString:
		if len(v.Str) <= 8 {
			var buf [8]byte
			copy(buf[:], v.Str)
			rec.InlineOrPtr = be.Uint64(buf[:])
			rec.OverflowLen = uint64(len(v.Str)) | inlineStringMarker
			return nil
		}
		fallthrough
	default:
		data, err := encodeOverflowValue(v)
		if err != nil {
			return err
		}
		ptr, err := ps.overflow.write(data)
		if err != nil {
			return err
		}
		rec.InlineOrPtr = ptr
		rec.OverflowLen = uint64(len(data))
	}
	return nil
}

// inlineStringMarker is OR'd into OverflowLen to distinguish an 8-byte
// inline string (InlineOrPtr holds the raw bytes) from an overflowed one
// (InlineOrPtr holds a file pointer). Real string lengths are far below
// this bit, so there is no collision.
const inlineStringMarker = 1 << 62

// ReadChain walks a property chain starting at head and returns the full
// property map. head == types.InvalidID yields an empty map.
func (ps *PropertyStore) ReadChain(head uint64) (map[types.PropertyKeyID]types.Value, error) {
	out := map[types.PropertyKeyID]types.Value{}
	id := head
	for id != types.InvalidID {
		if id >= ps.records.recordCount() {
			break
		}
		rec := decodePropRecord(ps.records.record(id))
		if !rec.InUse {
			break
		}
		v, err := ps.decodeValue(rec)
		if err != nil {
			return nil, err
		}
		out[rec.KeyID] = v
		id = rec.NextPropID
	}
	return out, nil
}

func (ps *PropertyStore) decodeValue(rec propRecord) (types.Value, error) {
	switch rec.Kind {
	case types.KindNull:
		return types.Null, nil
	case types.KindBool:
		return types.NewBool(rec.InlineOrPtr == 1), nil
	case types.KindInt:
		return types.NewInt(int64(rec.InlineOrPtr)), nil
	case types.KindFloat:
		return types.NewFloat(math.Float64frombits(rec.InlineOrPtr)), nil
	case types.KindString:
		if rec.OverflowLen&inlineStringMarker != 0 {
			n := rec.OverflowLen &^ inlineStringMarker
			var buf [8]byte
			be.PutUint64(buf[:], rec.InlineOrPtr)
			return types.NewString(string(buf[:n])), nil
		}
		data, err := ps.overflow.read(rec.InlineOrPtr, rec.OverflowLen)
		if err != nil {
			return types.Value{}, err
		}
		return decodeOverflowValue(types.KindString, data)
	default:
		data, err := ps.overflow.read(rec.InlineOrPtr, rec.OverflowLen)
		if err != nil {
			return types.Value{}, err
		}
		return decodeOverflowValue(rec.Kind, data)
	}
}

// FreeChain marks every record in the chain starting at head as free for
// reuse. It does not reclaim overflow bytes (see overflow.go).
func (ps *PropertyStore) FreeChain(head uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	id := head
	for id != types.InvalidID && id < ps.records.recordCount() {
		rec := decodePropRecord(ps.records.record(id))
		if !rec.InUse {
			break
		}
		next := rec.NextPropID
		rec.InUse = false
		encodePropRecord(ps.records.record(id), rec)
		ps.free = append(ps.free, id)
		id = next
	}
}

func (ps *PropertyStore) sync() error {
	if err := ps.records.sync(); err != nil {
		return err
	}
	return ps.overflow.sync()
}

func (ps *PropertyStore) close() error {
	if err := ps.records.close(); err != nil {
		return err
	}
	return ps.overflow.close()
}

// scanFreeSlots walks a freshly opened mmapFile and collects every record
// id for which isFree reports true, rebuilding the free list that an
// in-memory-only allocator would otherwise lose across restarts.
func scanFreeSlots(m *mmapFile, isFree func([]byte) bool) []uint64 {
	var free []uint64
	count := m.recordCount()
	for i := uint64(0); i < count; i++ {
		if isFree(m.record(i)) {
			free = append(free, i)
		}
	}
	return free
}
