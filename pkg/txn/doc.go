// Package txn is the single-writer transaction manager sitting between
// Cypher execution and pkg/storage: it serializes writers, logs every
// mutation to the WAL alongside applying it to the GraphStore, and
// drives crash recovery by replaying the WAL back through the same
// storage calls a live transaction would have made.
//
// Concurrency model: one writer at a time, many readers. A writable Txn
// holds the manager's lock exclusively for its whole lifetime; a
// read-only Txn holds it shared. Begin polls TryLock/TryRLock against a
// caller deadline rather than blocking forever, so a context timeout
// can't leak a goroutine parked on an uncancelable Lock call.
//
// Mutations apply to the GraphStore immediately (not deferred to
// commit) so a transaction can read its own writes and callers get node
// and relationship ids as soon as they create them. Rollback of
// creates/updates replays an undo stack in reverse; physical deletes are
// queued and only actually performed after commit's WAL fsync, since
// reusing a deleted record's storage slot before the deleting
// transaction is durable would let a crash mid-rollback hand that slot
// to two different entities.
package txn
