// Package wal implements Nexus's write-ahead log: a single append-only
// file per database, framed as [type:1][length:4][payload:N][crc32:4] per
// entry, with CRC32 (IEEE) covering [type][length][payload]. See
// spec.md §4.3 for the full contract.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
)

const headerSize = 1 + 4 // type + length
const crcSize = 4

// WAL is the append-only log for one database. Appends are single-writer
// (guarded by mu); reads of already-fsynced entries may happen
// concurrently through a fresh *os.File opened by NewReader.
type WAL struct {
	mu         sync.Mutex
	file       *os.File
	writer     *bufio.Writer
	path       string
	offset     uint64 // byte offset the next Append will be written at
	dirty      bool   // unflushed background writes since last Sync
	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// Open opens (creating if necessary) the WAL file at path and seeks to the
// end, ready to append. It does not replay — call Replay separately during
// recovery, before any new Append.
func Open(path string, syncInterval time.Duration) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Open", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Open", err)
	}

	w := &WAL{
		file:   f,
		writer: bufio.NewWriterSize(f, 32*1024),
		path:   path,
		offset: uint64(info.Size()),
		stopCh: make(chan struct{}),
	}

	if syncInterval > 0 {
		w.syncTicker = time.NewTicker(syncInterval)
		w.wg.Add(1)
		go w.backgroundSync()
	}

	return w, nil
}

func (w *WAL) backgroundSync() {
	defer w.wg.Done()
	for {
		select {
		case <-w.syncTicker.C:
			w.mu.Lock()
			if w.dirty {
				_ = w.flushLocked()
			}
			w.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}

// Close stops the background flusher and fsyncs any pending writes.
func (w *WAL) Close() error {
	if w.syncTicker != nil {
		close(w.stopCh)
		w.syncTicker.Stop()
		w.wg.Wait()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Close()
}

// Offset returns the current append offset (== file length once flushed).
func (w *WAL) Offset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// Append writes one entry and returns the offset it was written at. The
// entry is buffered; callers that need durability (commit markers) must
// call Sync afterward.
func (w *WAL) Append(entryType EntryType, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(entryType, payload)
}

func (w *WAL) appendLocked(entryType EntryType, payload []byte) (uint64, error) {
	off := w.offset
	header := make([]byte, headerSize)
	header[0] = byte(entryType)
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(payload)))

	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(payload)
	sum := make([]byte, crcSize)
	binary.LittleEndian.PutUint32(sum, crc.Sum32())

	n1, err := w.writer.Write(header)
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Append", err)
	}
	n2, err := w.writer.Write(payload)
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Append", err)
	}
	n3, err := w.writer.Write(sum)
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Append", err)
	}

	w.offset += uint64(n1 + n2 + n3)
	w.dirty = true
	return off, nil
}

// AppendCommit appends a CommitTxn marker and fsyncs before returning,
// per spec.md §4.3: "on commit the log is flushed to disk before the
// transaction is considered committed."
func (w *WAL) AppendCommit(txnID uint64) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, err := w.appendLocked(EntryCommitTxn, EncodeTxnMarker(txnID))
	if err != nil {
		return 0, err
	}
	if err := w.flushLocked(); err != nil {
		return 0, err
	}
	return off, nil
}

// Sync flushes the buffered writer and fsyncs the underlying file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if err := w.writer.Flush(); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.flush", err)
	}
	if err := w.file.Sync(); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.flush", err)
	}
	w.dirty = false
	return nil
}

// Truncate discards the file content up to and including offset,
// rewriting the remainder at the start. Used after a checkpoint makes
// earlier entries irrelevant to recovery.
func (w *WAL) Truncate(upToOffset uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		return err
	}
	if upToOffset == 0 || upToOffset >= w.offset {
		return nil
	}

	remaining := make([]byte, w.offset-upToOffset)
	if _, err := w.file.ReadAt(remaining, int64(upToOffset)); err != nil && err != io.EOF {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Truncate", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Truncate", err)
	}
	if _, err := w.file.WriteAt(remaining, 0); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Truncate", err)
	}
	if _, err := w.file.Seek(int64(len(remaining)), io.SeekStart); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Truncate", err)
	}
	w.offset = uint64(len(remaining))
	w.writer = bufio.NewWriterSize(w.file, 32*1024)
	log.WithComponent("wal").Info().
		Uint64("pruned_through", upToOffset).
		Msg("wal truncated past checkpoint")
	return nil
}

// Reader reads entries sequentially starting at a given file offset. It is
// independent of the writer's bufio buffer, so it is safe to use
// concurrently with Append as long as it only reads already-fsynced bytes
// (the replay path, which runs before any Append, is always safe).
type Reader struct {
	f      *os.File
	offset uint64
}

// NewReader opens a fresh read handle on the WAL file, positioned at
// startOffset.
func NewReader(path string, startOffset uint64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.NewReader", err)
	}
	return &Reader{f: f, offset: startOffset}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

// Next reads one entry. It returns io.EOF when the file is exhausted, and
// a CRC-mismatch or short-read error wrapped with Code CodeCrcMismatch /
// CodeStorageIO to signal "stop replay here, do not apply this entry" per
// spec.md §4.3 and the CRC guard testable property in spec.md §8.
func (r *Reader) Next() (Entry, error) {
	off := r.offset
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r.f, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Entry{}, io.EOF
		}
		return Entry{}, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "wal.Next", err)
	}
	entryType := EntryType(header[0])
	length := binary.LittleEndian.Uint32(header[1:5])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.f, payload); err != nil {
		return Entry{}, io.EOF // truncated tail: treat as never written
	}

	sum := make([]byte, crcSize)
	if _, err := io.ReadFull(r.f, sum); err != nil {
		return Entry{}, io.EOF
	}

	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(payload)
	if crc.Sum32() != binary.LittleEndian.Uint32(sum) {
		return Entry{}, fmt.Errorf("%w", nexuserr.New(nexuserr.KindStorage, nexuserr.CodeCrcMismatch,
			"wal.Next", fmt.Sprintf("checksum mismatch at offset %d", off)))
	}

	r.offset += uint64(headerSize + int(length) + crcSize)
	return Entry{Type: entryType, Payload: payload, Offset: off}, nil
}

// Offset returns the reader's current position (the offset the next
// entry, if any, starts at).
func (r *Reader) Offset() uint64 { return r.offset }
