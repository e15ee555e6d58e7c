package wal

import (
	"io"

	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
)

// Sink receives mutation entries during replay. ApplyMutation is called
// once per entry belonging to a transaction whose CommitTxn marker was
// found; entries belonging to a transaction with no commit marker (or
// whose tail was truncated/CRC-broken) are dropped, never applied — see
// spec.md §4.4's recovery contract and the WAL round-trip testable
// property in spec.md §8.
type Sink interface {
	ApplyMutation(txnID uint64, entry Entry) error
	ApplyCheckpoint(storeOffset uint64)
}

// Replay reads path from startOffset (the byte offset recorded by the
// last checkpoint, or 0 for a fresh database) and feeds committed
// mutations to sink in WAL order. It returns the offset immediately past
// the last well-formed entry seen, which becomes the new append position.
func Replay(path string, startOffset uint64, sink Sink) (uint64, error) {
	r, err := NewReader(path, startOffset)
	if err != nil {
		return startOffset, err
	}
	defer r.Close()

	logger := log.WithComponent("wal")
	pending := map[uint64][]Entry{}

	for {
		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if kind, ok := nexuserr.KindOf(err); ok && kind == nexuserr.KindStorage {
				logger.Warn().Uint64("offset", r.Offset()).Msg("wal recovery stopped at corrupt entry")
				break
			}
			return r.Offset(), err
		}

		switch entry.Type {
		case EntryBeginTxn:
			txnID := DecodeBeginTxn(entry.Payload)
			pending[txnID] = nil
		case EntryCommitTxn:
			txnID := DecodeTxnMarker(entry.Payload)
			for _, m := range pending[txnID] {
				if err := sink.ApplyMutation(txnID, m); err != nil {
					return r.Offset(), err
				}
			}
			delete(pending, txnID)
		case EntryAbortTxn:
			txnID := DecodeTxnMarker(entry.Payload)
			delete(pending, txnID)
		case EntryCheckpoint:
			sink.ApplyCheckpoint(DecodeCheckpoint(entry.Payload))
		default:
			// Node/Rel/Prop/Index mutation: buffer under its txn until the
			// commit marker arrives, or drop it if the txn never commits.
			h, _ := SplitMutationHeader(entry.Payload)
			pending[h.TxnID] = append(pending[h.TxnID], entry)
		}
	}

	if len(pending) > 0 {
		logger.Debug().Int("txns", len(pending)).Msg("dropped uncommitted transactions during replay")
	}

	return r.Offset(), nil
}
