package executor

import (
	"context"

	"github.com/nexusdb/nexus/pkg/planner"
)

// hashJoinIter builds a hash table over Left keyed on Keys, then
// probes it with each Right row, per spec.md §4.7's HashJoin. Every
// Right row is looked up in the table directly; no Bloom-filter
// pre-check is done.
type hashJoinIter struct {
	op    *planner.HashJoin
	left  Iterator
	right Iterator

	built   bool
	table   map[string][]Row
	pending []Row
}

func newHashJoin(op *planner.HashJoin, left, right Iterator) *hashJoinIter {
	return &hashJoinIter{op: op, left: left, right: right, table: map[string][]Row{}}
}

func (it *hashJoinIter) build(ctx context.Context) error {
	for {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		b, err := it.left.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		for _, row := range b.Rows {
			k := rowKey(row, it.op.Keys)
			it.table[k] = append(it.table[k], row)
		}
	}
}

func (it *hashJoinIter) Next(ctx context.Context) (*Batch, error) {
	if !it.built {
		if err := it.build(ctx); err != nil {
			return nil, err
		}
		it.built = true
	}
	for len(it.pending) < batchSize {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		b, err := it.right.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}
		for _, rrow := range b.Rows {
			k := rowKey(rrow, it.op.Keys)
			for _, lrow := range it.table[k] {
				merged := lrow.clone()
				for key, v := range rrow {
					merged[key] = v
				}
				it.pending = append(it.pending, merged)
			}
		}
	}
	if len(it.pending) == 0 {
		return nil, nil
	}
	end := batchSize
	if end > len(it.pending) {
		end = len(it.pending)
	}
	out := it.pending[:end]
	it.pending = it.pending[end:]
	return &Batch{Rows: out}, nil
}

func (it *hashJoinIter) Close() error {
	err1 := it.left.Close()
	err2 := it.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// mergeJoinIter does no sorting or merging of its own: Next hands both
// inputs to a hashJoinIter over the same Keys, so its output is exactly
// hashJoinIter's. It is kept for the operator's documented shape (see
// DESIGN.md: cost.go's annotateJoin never actually selects MergeJoin
// yet).
type mergeJoinIter struct {
	op    *planner.MergeJoin
	left  Iterator
	right Iterator
	hash  *hashJoinIter
}

func newMergeJoin(op *planner.MergeJoin, left, right Iterator) *mergeJoinIter {
	return &mergeJoinIter{op: op, left: left, right: right}
}

func (it *mergeJoinIter) Next(ctx context.Context) (*Batch, error) {
	if it.hash == nil {
		it.hash = newHashJoin(&planner.HashJoin{Left: nil, Right: nil, Keys: it.op.Keys}, it.left, it.right)
	}
	return it.hash.Next(ctx)
}

func (it *mergeJoinIter) Close() error {
	err1 := it.left.Close()
	err2 := it.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// nestedLoopJoinIter is the fallback cartesian join: every Left row
// against every Right row. Right is re-pulled from a materialized
// buffer after its first full drain, since Left may iterate it many
// times.
type nestedLoopJoinIter struct {
	left    Iterator
	right   Iterator
	rightAll []Row
	leftCur []Row
	leftPos int
	rightPos int
	drained bool
}

func newNestedLoopJoin(left, right Iterator) *nestedLoopJoinIter {
	return &nestedLoopJoinIter{left: left, right: right}
}

func (it *nestedLoopJoinIter) drainRight(ctx context.Context) error {
	for {
		b, err := it.right.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			it.drained = true
			return nil
		}
		it.rightAll = append(it.rightAll, b.Rows...)
	}
}

func (it *nestedLoopJoinIter) Next(ctx context.Context) (*Batch, error) {
	if !it.drained {
		if err := it.drainRight(ctx); err != nil {
			return nil, err
		}
	}
	if len(it.rightAll) == 0 {
		return nil, nil
	}
	var rows []Row
	for len(rows) < batchSize {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		if it.leftPos >= len(it.leftCur) {
			b, err := it.left.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			it.leftCur = b.Rows
			it.leftPos = 0
			it.rightPos = 0
			continue
		}
		lrow := it.leftCur[it.leftPos]
		for ; it.rightPos < len(it.rightAll) && len(rows) < batchSize; it.rightPos++ {
			merged := lrow.clone()
			for k, v := range it.rightAll[it.rightPos] {
				merged[k] = v
			}
			rows = append(rows, merged)
		}
		if it.rightPos >= len(it.rightAll) {
			it.leftPos++
			it.rightPos = 0
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &Batch{Rows: rows}, nil
}

func (it *nestedLoopJoinIter) Close() error {
	err1 := it.left.Close()
	err2 := it.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
