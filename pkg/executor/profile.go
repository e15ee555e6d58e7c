package executor

import (
	"context"
	"time"

	"github.com/nexusdb/nexus/pkg/planner"
)

// profilingIter wraps an Iterator to accumulate PROFILE's per-operator
// actual row counts and elapsed wall-clock time directly onto the
// physical plan node it was compiled from, since that's the same tree
// profileStats later flattens into QueryStats.OperatorStats. ElapsedUs
// is inclusive: the timer brackets this node's whole Next call, which
// includes every call it makes into its children, so a child's time is
// counted on the child and again on each of its ancestors.
type profilingIter struct {
	inner Iterator
	node  *planner.Physical
}

func newProfilingIter(inner Iterator, node *planner.Physical) *profilingIter {
	return &profilingIter{inner: inner, node: node}
}

func (it *profilingIter) Next(ctx context.Context) (*Batch, error) {
	start := time.Now()
	b, err := it.inner.Next(ctx)
	it.node.ElapsedUs += time.Since(start).Microseconds()
	if b != nil {
		it.node.ActualRows += uint64(len(b.Rows))
	}
	return b, err
}

func (it *profilingIter) Close() error { return it.inner.Close() }
