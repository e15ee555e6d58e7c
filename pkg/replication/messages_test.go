package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/pkg/wal"
)

func TestHelloMsgRoundTrip(t *testing.T) {
	m := HelloMsg{ReplicaID: "replica-1", Database: "default", LastAppliedOffset: 12345}
	got, err := decodeHello(m.encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestWelcomeMsgRoundTrip(t *testing.T) {
	m := WelcomeMsg{MasterID: "10.0.0.1:7891", ResumeAt: 999}
	got, err := decodeWelcome(m.encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestWalEntryMsgRoundTrip(t *testing.T) {
	m := WalEntryMsg{
		Database: "default",
		Offset:   42,
		Entry:    wal.Entry{Type: wal.EntryNodeCreate, Payload: []byte("node-payload")},
	}
	got, err := decodeWalEntry(m.encode())
	require.NoError(t, err)
	require.Equal(t, m.Database, got.Database)
	require.Equal(t, m.Offset, got.Offset)
	require.Equal(t, m.Entry.Type, got.Entry.Type)
	require.Equal(t, m.Entry.Payload, got.Entry.Payload)
	// decodeWalEntry fills Offset into the decoded entry too.
	require.Equal(t, m.Offset, got.Entry.Offset)
}

func TestWalEntryMsgRoundTripEmptyPayload(t *testing.T) {
	m := WalEntryMsg{Database: "default", Offset: 1, Entry: wal.Entry{Type: wal.EntryCommitTxn}}
	got, err := decodeWalEntry(m.encode())
	require.NoError(t, err)
	require.Empty(t, got.Entry.Payload)
}

func TestWalAckMsgRoundTrip(t *testing.T) {
	m := WalAckMsg{Database: "analytics", Offset: 777}
	got, err := decodeWalAck(m.encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestRequestSnapshotMsgRoundTrip(t *testing.T) {
	m := RequestSnapshotMsg{Database: "default"}
	got, err := decodeRequestSnapshot(m.encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestSnapshotMetaMsgRoundTrip(t *testing.T) {
	m := SnapshotMetaMsg{Database: "default", Offset: 555, TotalSize: 1 << 20, CRC32: 0xDEADBEEF}
	got, err := decodeSnapshotMeta(m.encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestSnapshotChunkMsgRoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	m := SnapshotChunkMsg{Data: data}
	got := decodeSnapshotChunk(m.encode())
	require.Equal(t, data, got.Data)
}

func TestErrorMsgRoundTrip(t *testing.T) {
	m := ErrorMsg{Code: "crc_mismatch", Message: "frame checksum mismatch"}
	got, err := decodeError(m.encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
	require.Equal(t, "crc_mismatch: frame checksum mismatch", m.String())
}

func TestGetStringErrorsOnShortPayload(t *testing.T) {
	_, _, err := getString([]byte{0, 0})
	require.Error(t, err)

	// Length prefix claims more bytes than are actually present.
	buf := make([]byte, 4)
	order.PutUint32(buf, 10)
	_, _, err = getString(buf)
	require.Error(t, err)
}

func TestDecodeHelloErrorsOnTruncatedOffset(t *testing.T) {
	b := putString(nil, "replica-1")
	b = putString(b, "default")
	b = append(b, 0, 0, 0) // short of the 8-byte offset
	_, err := decodeHello(b)
	require.Error(t, err)
}
