// Package storage implements Nexus's three memory-mapped record stores —
// nodes.store, rels.store and properties.store — per spec.md §4.2. Each is
// an append-friendly, fixed-width (or chunked, for properties) file
// addressed by id ≡ byte offset / record size, giving O(1) random reads.
// Growth is pre-allocated in large chunks to minimize remapping.
package storage

import (
	"os"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"golang.org/x/sys/unix"
)

// growthChunkBytes is the minimum amount a store file grows by, per
// spec.md §4.2 ("large chunks, ≥1 MiB, to minimize remapping").
const growthChunkBytes = 1 << 20

// mmapFile is a growable, memory-mapped fixed-record-size file. It is not
// safe for concurrent Grow calls; callers serialize growth under their own
// lock (the commit lock in pkg/txn covers all store mutation).
type mmapFile struct {
	f          *os.File
	data       []byte // current mapping
	recordSize int
}

func openMmapFile(path string, recordSize int) (*mmapFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.openMmapFile", err)
	}
	mf := &mmapFile{f: f, recordSize: recordSize}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.openMmapFile", err)
	}
	if info.Size() == 0 {
		if err := mf.grow(growthChunkBytes); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := mf.remap(info.Size()); err != nil {
		f.Close()
		return nil, err
	}
	return mf, nil
}

func (m *mmapFile) remap(size int64) error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.remap", err)
		}
		m.data = nil
	}
	data, err := unix.Mmap(int(m.f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.remap", err)
	}
	m.data = data
	return nil
}

// grow extends the file by at least minBytes, rounded up to a
// growthChunkBytes boundary, and remaps it. Called with no data loss —
// existing bytes are preserved, trailing bytes are zero.
func (m *mmapFile) grow(minBytes int) error {
	current := int64(len(m.data))
	chunks := (int64(minBytes) + growthChunkBytes - 1) / growthChunkBytes
	newSize := current + chunks*growthChunkBytes
	if err := m.f.Truncate(newSize); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.grow", err)
	}
	return m.remap(newSize)
}

// ensureCapacity grows the mapping until it can hold recordID.
func (m *mmapFile) ensureCapacity(recordID uint64) error {
	needed := int64(recordID+1) * int64(m.recordSize)
	if needed <= int64(len(m.data)) {
		return nil
	}
	return m.grow(int(needed - int64(len(m.data))))
}

// record returns a slice view onto the raw bytes of recordID. The slice
// aliases the mmap — callers must copy before the next remap if they need
// a stable snapshot.
func (m *mmapFile) record(recordID uint64) []byte {
	start := recordID * uint64(m.recordSize)
	return m.data[start : start+uint64(m.recordSize)]
}

func (m *mmapFile) recordCount() uint64 {
	return uint64(len(m.data)) / uint64(m.recordSize)
}

func (m *mmapFile) sync() error {
	if len(m.data) == 0 {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.sync", err)
	}
	return nil
}

func (m *mmapFile) close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.close", err)
		}
		m.data = nil
	}
	return m.f.Close()
}
