package wal

import (
	"encoding/binary"
)

// byteOrder is the wire byte order for every WAL-encoded integer.
var byteOrder = binary.LittleEndian

// EntryType tags the kind of mutation a WAL entry carries, per spec.md §4.3.
type EntryType uint8

const (
	EntryBeginTxn EntryType = iota + 1
	EntryNodeCreate
	EntryNodeUpdate
	EntryNodeDelete
	EntryRelCreate
	EntryRelUpdate
	EntryRelDelete
	EntryPropSet
	EntryPropUnset
	EntryIndexInsert
	EntryIndexRemove
	EntryCheckpoint
	EntryCommitTxn
	EntryAbortTxn
)

func (t EntryType) String() string {
	switch t {
	case EntryBeginTxn:
		return "BeginTxn"
	case EntryNodeCreate:
		return "NodeCreate"
	case EntryNodeUpdate:
		return "NodeUpdate"
	case EntryNodeDelete:
		return "NodeDelete"
	case EntryRelCreate:
		return "RelCreate"
	case EntryRelUpdate:
		return "RelUpdate"
	case EntryRelDelete:
		return "RelDelete"
	case EntryPropSet:
		return "PropSet"
	case EntryPropUnset:
		return "PropUnset"
	case EntryIndexInsert:
		return "IndexInsert"
	case EntryIndexRemove:
		return "IndexRemove"
	case EntryCheckpoint:
		return "Checkpoint"
	case EntryCommitTxn:
		return "CommitTxn"
	case EntryAbortTxn:
		return "AbortTxn"
	default:
		return "Unknown"
	}
}

// Entry is one WAL record. Type and Payload are framed on disk as
// [type:1][length:4][payload][crc32:4]; Offset is filled in by the WAL on
// Append and by the reader on replay, never encoded itself. The meaning of
// Payload beyond the txn-intrinsic kinds (BeginTxn/CommitTxn/AbortTxn/
// Checkpoint, encoded by this package) is owned by pkg/storage and
// pkg/txn, which is why wal never imports them — it is a pure byte-level
// append-and-replay log.
type Entry struct {
	Type    EntryType
	Payload []byte
	Offset  uint64
}

// EncodeBeginTxn builds the payload for an EntryBeginTxn record.
func EncodeBeginTxn(txnID uint64) []byte {
	b := make([]byte, 8)
	byteOrder.PutUint64(b, txnID)
	return b
}

// DecodeBeginTxn reads back the txn id from an EntryBeginTxn payload.
func DecodeBeginTxn(payload []byte) uint64 {
	return byteOrder.Uint64(payload)
}

// EncodeTxnMarker builds the payload for EntryCommitTxn/EntryAbortTxn.
func EncodeTxnMarker(txnID uint64) []byte {
	b := make([]byte, 8)
	byteOrder.PutUint64(b, txnID)
	return b
}

// DecodeTxnMarker reads back the txn id from a commit/abort payload.
func DecodeTxnMarker(payload []byte) uint64 {
	return byteOrder.Uint64(payload)
}

// EncodeCheckpoint builds the payload for an EntryCheckpoint record: the
// byte offset into the store files that is now durable.
func EncodeCheckpoint(storeOffset uint64) []byte {
	b := make([]byte, 8)
	byteOrder.PutUint64(b, storeOffset)
	return b
}

// DecodeCheckpoint reads back the store offset from a checkpoint payload.
func DecodeCheckpoint(payload []byte) uint64 {
	return byteOrder.Uint64(payload)
}

// MutationHeader is the common prefix (txn id + entity id) every
// node/rel/prop/index mutation payload starts with. pkg/storage and
// pkg/txn prepend this before their own type-specific tail and use
// EncodeMutationHeader/SplitMutationHeader to stay wire-compatible across
// restarts and with replicas, without wal needing to know their shapes.
type MutationHeader struct {
	TxnID    uint64
	EntityID uint64
}

// EncodeMutationHeader writes TxnID and EntityID followed by tail.
func EncodeMutationHeader(h MutationHeader, tail []byte) []byte {
	b := make([]byte, 16+len(tail))
	byteOrder.PutUint64(b[0:8], h.TxnID)
	byteOrder.PutUint64(b[8:16], h.EntityID)
	copy(b[16:], tail)
	return b
}

// SplitMutationHeader parses the common prefix off a mutation payload.
func SplitMutationHeader(payload []byte) (MutationHeader, []byte) {
	return MutationHeader{
		TxnID:    byteOrder.Uint64(payload[0:8]),
		EntityID: byteOrder.Uint64(payload[8:16]),
	}, payload[16:]
}
