// Package replication implements Nexus's single-master WAL-streaming
// replication, per spec.md §4.9: one master accepts writes and streams
// its committed WAL entries to any number of replicas, which apply them
// in order and serve reads. A replica too far behind the master's
// retained log instead receives a tar+zstd snapshot of the database
// directory and resumes streaming from the offset the snapshot covers.
//
// The wire format mirrors pkg/wal's own framing
// ([type:1][length:4][payload:N][crc32:4]) rather than a general-purpose
// RPC encoding — replication is a single long-lived stream of mostly one
// message kind (WalEntry), so the same compact, allocation-light framing
// the WAL already uses on disk is the natural fit over the wire.
package replication
