package storage

import (
	"encoding/binary"

	"github.com/nexusdb/nexus/pkg/types"
)

var be = binary.LittleEndian

// NodeRecordSize is the fixed width of a node record. Layout:
//
//	[0]    in_use (1 byte)
//	[1:4]  reserved
//	[4:8]   label count (number of types.LabelID entries at LabelListPtr)
//	[8:16]  first outgoing rel id
//	[16:24] first incoming rel id
//	[24:32] first property id
//	[32:40] label list pointer (into the label store's append-only file)
const NodeRecordSize = 40

type nodeRecord struct {
	InUse        bool
	LabelCount   uint32
	FirstOutRel  uint64
	FirstInRel   uint64
	FirstPropID  uint64
	LabelListPtr uint64
}

func encodeNodeRecord(b []byte, r nodeRecord) {
	if r.InUse {
		b[0] = 1
	} else {
		b[0] = 0
	}
	be.PutUint32(b[4:8], r.LabelCount)
	be.PutUint64(b[8:16], r.FirstOutRel)
	be.PutUint64(b[16:24], r.FirstInRel)
	be.PutUint64(b[24:32], r.FirstPropID)
	be.PutUint64(b[32:40], r.LabelListPtr)
}

func decodeNodeRecord(b []byte) nodeRecord {
	return nodeRecord{
		InUse:        b[0] == 1,
		LabelCount:   be.Uint32(b[4:8]),
		FirstOutRel:  be.Uint64(b[8:16]),
		FirstInRel:   be.Uint64(b[16:24]),
		FirstPropID:  be.Uint64(b[24:32]),
		LabelListPtr: be.Uint64(b[32:40]),
	}
}

// RelRecordSize is the fixed width of a relationship record. Layout:
//
//	[0]    in_use
//	[4:8]  type id
//	[8:16]  source node id
//	[16:24] target node id
//	[24:32] prev rel in source's adjacency list
//	[32:40] next rel in source's adjacency list
//	[40:48] prev rel in target's adjacency list
//	[48:56] next rel in target's adjacency list
//	[56:64] first property id
const RelRecordSize = 64

type relRecord struct {
	InUse    bool
	TypeID   types.RelTypeID
	Source   uint64
	Target   uint64
	SrcPrev  uint64
	SrcNext  uint64
	TgtPrev  uint64
	TgtNext  uint64
	FirstPropID uint64
}

func encodeRelRecord(b []byte, r relRecord) {
	if r.InUse {
		b[0] = 1
	} else {
		b[0] = 0
	}
	be.PutUint32(b[4:8], uint32(r.TypeID))
	be.PutUint64(b[8:16], r.Source)
	be.PutUint64(b[16:24], r.Target)
	be.PutUint64(b[24:32], r.SrcPrev)
	be.PutUint64(b[32:40], r.SrcNext)
	be.PutUint64(b[40:48], r.TgtPrev)
	be.PutUint64(b[48:56], r.TgtNext)
	be.PutUint64(b[56:64], r.FirstPropID)
}

func decodeRelRecord(b []byte) relRecord {
	return relRecord{
		InUse:       b[0] == 1,
		TypeID:      types.RelTypeID(be.Uint32(b[4:8])),
		Source:      be.Uint64(b[8:16]),
		Target:      be.Uint64(b[16:24]),
		SrcPrev:     be.Uint64(b[24:32]),
		SrcNext:     be.Uint64(b[32:40]),
		TgtPrev:     be.Uint64(b[40:48]),
		TgtNext:     be.Uint64(b[48:56]),
		FirstPropID: be.Uint64(b[56:64]),
	}
}

// PropRecordSize is the fixed width of one property chunk. A property
// with a value too large to inline (long strings, lists, maps, vectors)
// stores its payload in the overflow file and keeps only a pointer+length
// here. Layout:
//
//	[0]    in_use
//	[1]    value type tag (types.ValueKind)
//	[4:8]   key id
//	[8:16]  inline: int64/float64/bool or a string of up to 8 bytes, else overflow pointer
//	[16:24] overflow length; for an inline string its length OR'd with inlineStringMarker; 0 for other inline values
//	[24:32] next property id (chain within one entity)
const PropRecordSize = 32

type propRecord struct {
	InUse       bool
	Kind        types.ValueKind
	KeyID       types.PropertyKeyID
	InlineOrPtr uint64
	OverflowLen uint64
	NextPropID  uint64
}

func encodePropRecord(b []byte, r propRecord) {
	if r.InUse {
		b[0] = 1
	} else {
		b[0] = 0
	}
	b[1] = byte(r.Kind)
	be.PutUint32(b[4:8], uint32(r.KeyID))
	be.PutUint64(b[8:16], r.InlineOrPtr)
	be.PutUint64(b[16:24], r.OverflowLen)
	be.PutUint64(b[24:32], r.NextPropID)
}

func decodePropRecord(b []byte) propRecord {
	return propRecord{
		InUse:       b[0] == 1,
		Kind:        types.ValueKind(b[1]),
		KeyID:       types.PropertyKeyID(be.Uint32(b[4:8])),
		InlineOrPtr: be.Uint64(b[8:16]),
		OverflowLen: be.Uint64(b[16:24]),
		NextPropID:  be.Uint64(b[24:32]),
	}
}
