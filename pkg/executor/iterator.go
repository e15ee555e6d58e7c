package executor

import "context"

// Iterator is the pull interface every physical operator implements.
// Next returns the next batch, or a nil batch with a nil error once
// exhausted. Close releases cursors/sort buffers; it is always called,
// even after an error, so it must tolerate a partially-initialized
// operator.
type Iterator interface {
	Next(ctx context.Context) (*Batch, error)
	Close() error
}

// checkCancelled is polled at the top of every operator's Next, per
// spec.md §4.7's cancellation requirement: a long scan or expand must
// notice a cancelled context between batches, not just at the top of
// the whole query.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrDeadlineExceeded
		}
		return ErrQueryCancelled
	default:
		return nil
	}
}
