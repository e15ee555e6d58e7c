package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	applied     []Entry
	checkpoints []uint64
}

func (s *recordingSink) ApplyMutation(txnID uint64, entry Entry) error {
	s.applied = append(s.applied, entry)
	return nil
}

func (s *recordingSink) ApplyCheckpoint(offset uint64) {
	s.checkpoints = append(s.checkpoints, offset)
}

func TestAppendAndReplay_OnlyCommittedTxnsApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, 0)
	require.NoError(t, err)

	_, err = w.Append(EntryBeginTxn, EncodeBeginTxn(1))
	require.NoError(t, err)
	_, err = w.Append(EntryNodeCreate, EncodeMutationHeader(MutationHeader{TxnID: 1, EntityID: 42}, nil))
	require.NoError(t, err)
	_, err = w.AppendCommit(1)
	require.NoError(t, err)

	_, err = w.Append(EntryBeginTxn, EncodeBeginTxn(2))
	require.NoError(t, err)
	_, err = w.Append(EntryNodeCreate, EncodeMutationHeader(MutationHeader{TxnID: 2, EntityID: 99}, nil))
	require.NoError(t, err)
	// txn 2 never commits
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	sink := &recordingSink{}
	endOffset, err := Replay(path, 0, sink)
	require.NoError(t, err)
	require.Positive(t, endOffset)

	require.Len(t, sink.applied, 1)
	h, _ := SplitMutationHeader(sink.applied[0].Payload)
	require.Equal(t, uint64(42), h.EntityID)
}

func TestReplay_StopsAtCorruptTailEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, 0)
	require.NoError(t, err)

	_, err = w.Append(EntryBeginTxn, EncodeBeginTxn(1))
	require.NoError(t, err)
	_, err = w.AppendCommit(1)
	require.NoError(t, err)
	goodOffset := w.Offset()

	_, err = w.Append(EntryBeginTxn, EncodeBeginTxn(2))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	// Flip a bit inside the second entry's payload to break its CRC.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, int64(goodOffset)+int64(headerSize))
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, int64(goodOffset)+int64(headerSize))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sink := &recordingSink{}
	endOffset, err := Replay(path, 0, sink)
	require.NoError(t, err)
	require.Equal(t, goodOffset, endOffset)
}

func TestTruncatePreservesEntriesPastCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path, 0)
	require.NoError(t, err)

	_, err = w.Append(EntryBeginTxn, EncodeBeginTxn(1))
	require.NoError(t, err)
	_, err = w.AppendCommit(1)
	require.NoError(t, err)
	checkpointAt := w.Offset()

	_, err = w.Append(EntryBeginTxn, EncodeBeginTxn(2))
	require.NoError(t, err)
	_, err = w.AppendCommit(2)
	require.NoError(t, err)

	require.NoError(t, w.Truncate(checkpointAt))

	r, err := NewReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	entry, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, EntryBeginTxn, entry.Type)
	require.Equal(t, uint64(2), DecodeBeginTxn(entry.Payload))

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}
