package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

var be = binary.BigEndian

// PropertyIndex is a b-tree-like equality/range index over one
// (label, property) or (type, property) pair, backed by one bbolt
// bucket per index so bolt's own page b-tree does the ordered-key
// range scans. Keys are the property value's sortable encoding
// (encodeSortKey); values are a roaring bitmap of matching entity ids,
// since many entities commonly share one property value (an
// age=30 index, say).
type PropertyIndex struct {
	mu   sync.Mutex
	db   *bolt.DB
	name string
}

var bucketEntries = []byte("entries")

// OpenPropertyIndex opens (creating if absent) the bbolt file backing
// one named index under dir.
func OpenPropertyIndex(dir, name string) (*PropertyIndex, error) {
	path := filepath.Join(dir, fmt.Sprintf("idx-%s.db", name))
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.OpenPropertyIndex", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		db.Close()
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.OpenPropertyIndex", err)
	}
	return &PropertyIndex{db: db, name: name}, nil
}

func (pi *PropertyIndex) Close() error { return pi.db.Close() }

// encodeSortKey maps a property Value onto a byte string that sorts in
// value order, so bolt's lexicographic bucket cursor can serve range
// seeks directly. Only the scalar kinds an index can be built over are
// supported; callers filter non-indexable values out before calling.
func encodeSortKey(v types.Value) ([]byte, error) {
	switch v.Kind {
	case types.KindInt:
		b := make([]byte, 9)
		b[0] = byte(types.KindInt)
		// Flip the sign bit so two's-complement ints sort correctly as
		// unsigned big-endian bytes.
		be.PutUint64(b[1:], uint64(v.Int)^(1<<63))
		return b, nil
	case types.KindFloat:
		b := make([]byte, 9)
		b[0] = byte(types.KindFloat)
		bits := floatSortBits(v.Float)
		be.PutUint64(b[1:], bits)
		return b, nil
	case types.KindString:
		b := make([]byte, 1+len(v.Str))
		b[0] = byte(types.KindString)
		copy(b[1:], v.Str)
		return b, nil
	case types.KindBool:
		b := make([]byte, 2)
		b[0] = byte(types.KindBool)
		if v.Bool {
			b[1] = 1
		}
		return b, nil
	default:
		return nil, nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeTypeMismatch, "index.encodeSortKey",
			fmt.Sprintf("value kind %s is not indexable", v.Kind))
	}
}

// floatSortBits maps a float64's IEEE-754 bits onto a uint64 that
// preserves numeric ordering: for non-negative floats, flip the sign
// bit; for negative floats, flip every bit (reversing their natural
// descending bit-pattern order into ascending numeric order).
func floatSortBits(f float64) uint64 {
	bits := float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

func float64bits(f float64) uint64 {
	return math.Float64bits(f)
}

// loadBitmap reads the roaring bitmap stored at key in b, or an empty
// one if key is absent.
func loadBitmap(b *bolt.Bucket, key []byte) *roaring.Bitmap {
	return bitmapFromBytes(b.Get(key))
}

func bitmapFromBytes(data []byte) *roaring.Bitmap {
	bm := roaring.New()
	if len(data) > 0 {
		_ = bm.UnmarshalBinary(data)
	}
	return bm
}

func storeBitmap(b *bolt.Bucket, key []byte, bm *roaring.Bitmap) error {
	data, err := bm.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func toUint64s(ids []uint32) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

// Insert adds id to the bitmap stored under value's sort key.
func (pi *PropertyIndex) Insert(value types.Value, id uint64) error {
	key, err := encodeSortKey(value)
	if err != nil {
		return err
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		bm := loadBitmap(b, key)
		bm.Add(uint32(id))
		return storeBitmap(b, key, bm)
	})
}

// Remove drops id from the bitmap stored under value's sort key.
func (pi *PropertyIndex) Remove(value types.Value, id uint64) error {
	key, err := encodeSortKey(value)
	if err != nil {
		return err
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		bm := loadBitmap(b, key)
		bm.Remove(uint32(id))
		if bm.IsEmpty() {
			return b.Delete(key)
		}
		return storeBitmap(b, key, bm)
	})
}

// SeekEqual returns every id indexed under exactly value.
func (pi *PropertyIndex) SeekEqual(value types.Value) ([]uint64, error) {
	key, err := encodeSortKey(value)
	if err != nil {
		return nil, err
	}
	var out []uint64
	err = pi.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		out = toUint64s(loadBitmap(b, key).ToArray())
		return nil
	})
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.SeekEqual", err)
	}
	return out, nil
}

// SeekRange returns every id whose value lies in [low, high], both
// bounds inclusive. A nil bound means unbounded on that side.
func (pi *PropertyIndex) SeekRange(low, high *types.Value) ([]uint64, error) {
	var lowKey, highKey []byte
	if low != nil {
		k, err := encodeSortKey(*low)
		if err != nil {
			return nil, err
		}
		lowKey = k
	}
	if high != nil {
		k, err := encodeSortKey(*high)
		if err != nil {
			return nil, err
		}
		highKey = k
	}

	var ids []uint64
	err := pi.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		var k, v []byte
		if lowKey != nil {
			k, v = c.Seek(lowKey)
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			if highKey != nil && compareKeys(k, highKey) > 0 {
				break
			}
			ids = append(ids, toUint64s(bitmapFromBytes(v).ToArray())...)
		}
		return nil
	})
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "index.SeekRange", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func compareKeys(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
