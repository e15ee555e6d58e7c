package replication

import (
	"encoding/binary"
	"fmt"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/wal"
)

var order = binary.LittleEndian

// putString writes a length-prefixed UTF-8 string.
func putString(buf []byte, s string) []byte {
	var n [4]byte
	order.PutUint32(n[:], uint32(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, s...)
}

func getString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errShortPayload
	}
	n := order.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return "", nil, errShortPayload
	}
	return string(b[:n]), b[n:], nil
}

var errShortPayload = nexuserr.New(nexuserr.KindReplication, nexuserr.CodeProtocolError,
	"replication.decode", "payload shorter than its declared fields")

// HelloMsg is what a replica sends on connect: who it is, which database
// it wants streamed, and how far it has already applied. The master uses
// LastAppliedOffset to decide between Welcome (resume streaming) and
// instructing a snapshot.
type HelloMsg struct {
	ReplicaID         string
	Database          string
	LastAppliedOffset uint64
}

func (m HelloMsg) encode() []byte {
	b := make([]byte, 0, 32+len(m.ReplicaID)+len(m.Database))
	b = putString(b, m.ReplicaID)
	b = putString(b, m.Database)
	var off [8]byte
	order.PutUint64(off[:], m.LastAppliedOffset)
	return append(b, off[:]...)
}

func decodeHello(p []byte) (HelloMsg, error) {
	replicaID, p, err := getString(p)
	if err != nil {
		return HelloMsg{}, err
	}
	db, p, err := getString(p)
	if err != nil {
		return HelloMsg{}, err
	}
	if len(p) < 8 {
		return HelloMsg{}, errShortPayload
	}
	return HelloMsg{ReplicaID: replicaID, Database: db, LastAppliedOffset: order.Uint64(p)}, nil
}

// WelcomeMsg acknowledges a Hello and tells the replica where streaming
// will resume from — normally equal to the Hello's LastAppliedOffset,
// unless the master coalesced forward (never backward).
type WelcomeMsg struct {
	MasterID    string
	ResumeAt    uint64
}

func (m WelcomeMsg) encode() []byte {
	b := make([]byte, 0, 16+len(m.MasterID))
	b = putString(b, m.MasterID)
	var off [8]byte
	order.PutUint64(off[:], m.ResumeAt)
	return append(b, off[:]...)
}

func decodeWelcome(p []byte) (WelcomeMsg, error) {
	masterID, p, err := getString(p)
	if err != nil {
		return WelcomeMsg{}, err
	}
	if len(p) < 8 {
		return WelcomeMsg{}, errShortPayload
	}
	return WelcomeMsg{MasterID: masterID, ResumeAt: order.Uint64(p)}, nil
}

// WalEntryMsg carries one committed WAL entry for one database, tagged
// with the byte offset it was read from in the master's log.
type WalEntryMsg struct {
	Database string
	Offset   uint64
	Entry    wal.Entry
}

func (m WalEntryMsg) encode() []byte {
	b := make([]byte, 0, 32+len(m.Database)+len(m.Entry.Payload))
	b = putString(b, m.Database)
	var off [8]byte
	order.PutUint64(off[:], m.Offset)
	b = append(b, off[:]...)
	b = append(b, byte(m.Entry.Type))
	var plen [4]byte
	order.PutUint32(plen[:], uint32(len(m.Entry.Payload)))
	b = append(b, plen[:]...)
	return append(b, m.Entry.Payload...)
}

func decodeWalEntry(p []byte) (WalEntryMsg, error) {
	db, p, err := getString(p)
	if err != nil {
		return WalEntryMsg{}, err
	}
	if len(p) < 8+1+4 {
		return WalEntryMsg{}, errShortPayload
	}
	offset := order.Uint64(p)
	p = p[8:]
	entryType := wal.EntryType(p[0])
	p = p[1:]
	plen := order.Uint32(p[:4])
	p = p[4:]
	if uint32(len(p)) < plen {
		return WalEntryMsg{}, errShortPayload
	}
	payload := make([]byte, plen)
	copy(payload, p[:plen])
	return WalEntryMsg{Database: db, Offset: offset, Entry: wal.Entry{Type: entryType, Payload: payload, Offset: offset}}, nil
}

// WalAckMsg is a replica's acknowledgement that it has durably applied
// through Offset. The master records the latest acked offset per
// replica and reports it through Master.AggregateAck; a commit on the
// master does not wait for any WalAck before it is acknowledged.
type WalAckMsg struct {
	Database string
	Offset   uint64
}

func (m WalAckMsg) encode() []byte {
	b := make([]byte, 0, 12+len(m.Database))
	b = putString(b, m.Database)
	var off [8]byte
	order.PutUint64(off[:], m.Offset)
	return append(b, off[:]...)
}

func decodeWalAck(p []byte) (WalAckMsg, error) {
	db, p, err := getString(p)
	if err != nil {
		return WalAckMsg{}, err
	}
	if len(p) < 8 {
		return WalAckMsg{}, errShortPayload
	}
	return WalAckMsg{Database: db, Offset: order.Uint64(p)}, nil
}

// RequestSnapshotMsg names a database whose snapshot is wanted. The
// Replica in this package never sends it, and a master that receives
// one drops the connection; a snapshot is sent instead when a Hello's
// offset has aged out of the master's ring.
type RequestSnapshotMsg struct {
	Database string
}

func (m RequestSnapshotMsg) encode() []byte { return putString(nil, m.Database) }

func decodeRequestSnapshot(p []byte) (RequestSnapshotMsg, error) {
	db, _, err := getString(p)
	return RequestSnapshotMsg{Database: db}, err
}

// SnapshotMetaMsg precedes a run of SnapshotChunk frames: the database
// name, the WAL offset the archive is consistent up to (streaming
// resumes from here once the snapshot is loaded), the total archive
// size, and a CRC32 over the whole archive body the replica checks once
// every chunk has arrived.
type SnapshotMetaMsg struct {
	Database  string
	Offset    uint64
	TotalSize int64
	CRC32     uint32
}

func (m SnapshotMetaMsg) encode() []byte {
	b := make([]byte, 0, 24+len(m.Database))
	b = putString(b, m.Database)
	var tail [8 + 8 + 4]byte
	order.PutUint64(tail[0:8], m.Offset)
	order.PutUint64(tail[8:16], uint64(m.TotalSize))
	order.PutUint32(tail[16:20], m.CRC32)
	return append(b, tail[:]...)
}

func decodeSnapshotMeta(p []byte) (SnapshotMetaMsg, error) {
	db, p, err := getString(p)
	if err != nil {
		return SnapshotMetaMsg{}, err
	}
	if len(p) < 20 {
		return SnapshotMetaMsg{}, errShortPayload
	}
	return SnapshotMetaMsg{
		Database:  db,
		Offset:    order.Uint64(p[0:8]),
		TotalSize: int64(order.Uint64(p[8:16])),
		CRC32:     order.Uint32(p[16:20]),
	}, nil
}

// SnapshotChunkMsg carries one piece of the archive body. The framing
// layer's own length field delimits each chunk; Data is the raw slice.
type SnapshotChunkMsg struct {
	Data []byte
}

func (m SnapshotChunkMsg) encode() []byte { return m.Data }

func decodeSnapshotChunk(p []byte) SnapshotChunkMsg { return SnapshotChunkMsg{Data: p} }

// ErrorMsg reports a protocol-level failure the receiver should treat as
// connection-fatal (the sender will close right after writing it).
type ErrorMsg struct {
	Code    string
	Message string
}

func (m ErrorMsg) encode() []byte {
	b := putString(nil, m.Code)
	return putString(b, m.Message)
}

func decodeError(p []byte) (ErrorMsg, error) {
	code, p, err := getString(p)
	if err != nil {
		return ErrorMsg{}, err
	}
	msg, _, err := getString(p)
	if err != nil {
		return ErrorMsg{}, err
	}
	return ErrorMsg{Code: code, Message: msg}, nil
}

func (m ErrorMsg) String() string { return fmt.Sprintf("%s: %s", m.Code, m.Message) }
