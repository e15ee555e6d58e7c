package replication

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := newConn(client)
	sc := newConn(server)

	done := make(chan error, 1)
	go func() {
		done <- cc.writeFrame(MsgWalEntry, []byte("payload bytes"))
	}()

	fr, err := sc.readFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, MsgWalEntry, fr.Type)
	require.Equal(t, []byte("payload bytes"), fr.Payload)
}

func TestFrameWriteReadEmptyPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := newConn(client)
	sc := newConn(server)

	done := make(chan error, 1)
	go func() {
		done <- cc.writeFrame(MsgPing, nil)
	}()

	fr, err := sc.readFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, MsgPing, fr.Type)
	require.Empty(t, fr.Payload)
}

func TestReadFrameDetectsCRCMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sc := newConn(server)

	done := make(chan error, 1)
	go func() {
		header := []byte{byte(MsgWalEntry), 5, 0, 0, 0}
		payload := []byte("hello")
		corruptSum := []byte{0xFF, 0xFF, 0xFF, 0xFF}
		_, err := client.Write(append(append(header, payload...), corruptSum...))
		done <- err
	}()

	_, err := sc.readFrame()
	require.NoError(t, <-done)
	require.Error(t, err)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sc := newConn(server)

	done := make(chan error, 1)
	go func() {
		header := []byte{byte(MsgWalEntry), 0xFF, 0xFF, 0xFF, 0xFF}
		_, err := client.Write(header)
		done <- err
	}()

	_, err := sc.readFrame()
	require.Error(t, err)
	<-done
}

func TestMessageTypeString(t *testing.T) {
	require.Equal(t, "Hello", MsgHello.String())
	require.Equal(t, "WalAck", MsgWalAck.String())
	require.Equal(t, "Unknown", MessageType(255).String())
}
