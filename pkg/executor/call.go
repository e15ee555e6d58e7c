package executor

import (
	"context"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/types"
)

// ProcedureFunc is the seam pkg/procedure registers built-ins through
// (db.labels(), db.relationshipTypes(), db.propertyKeys(), db.indexes()):
// given the already-evaluated call arguments it returns zero or more
// result rows keyed by the procedure's own output column names.
type ProcedureFunc func(ctx context.Context, c *Compiler, args []types.Value) ([]map[string]types.Value, error)

// callProcedureIter invokes a registered ProcedureFunc once per Input
// row (or once with no input, for a standalone leading CALL), filtering
// its output columns down to Yield when present.
type callProcedureIter struct {
	c     *Compiler
	op    *planner.CallProcedure
	input Iterator
	fn    ProcedureFunc

	queue []Row
	done  bool
}

func newCallProcedure(c *Compiler, op *planner.CallProcedure, input Iterator) (*callProcedureIter, error) {
	fn, ok := c.procedures[op.Procedure]
	if !ok {
		return nil, errf(nexuserr.CodeUnsupportedPattern, "executor.CallProcedure", "unknown procedure "+op.Procedure)
	}
	return &callProcedureIter{c: c, op: op, input: input, fn: fn}, nil
}

func (it *callProcedureIter) invoke(ctx context.Context, row Row) ([]Row, error) {
	args := make([]types.Value, 0, len(it.op.Args))
	for _, a := range it.op.Args {
		v, err := Eval(it.c.ec, row, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	results, err := it.fn(ctx, it.c, args)
	if err != nil {
		return nil, wrapf(nexuserr.CodeNotFound, "executor.CallProcedure", err)
	}
	out := make([]Row, 0, len(results))
	for _, res := range results {
		merged := row.clone()
		if len(it.op.Yield) > 0 {
			for _, y := range it.op.Yield {
				if v, ok := res[y]; ok {
					merged[y] = v
				}
			}
		} else {
			for k, v := range res {
				merged[k] = v
			}
		}
		out = append(out, merged)
	}
	return out, nil
}

func (it *callProcedureIter) Next(ctx context.Context) (*Batch, error) {
	for len(it.queue) < batchSize {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		if it.input == nil {
			if it.done {
				break
			}
			it.done = true
			rows, err := it.invoke(ctx, Row{})
			if err != nil {
				return nil, err
			}
			it.queue = append(it.queue, rows...)
			break
		}
		b, err := it.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}
		for _, row := range b.Rows {
			rows, err := it.invoke(ctx, row)
			if err != nil {
				return nil, err
			}
			it.queue = append(it.queue, rows...)
		}
	}
	if len(it.queue) == 0 {
		return nil, nil
	}
	end := batchSize
	if end > len(it.queue) {
		end = len(it.queue)
	}
	out := it.queue[:end]
	it.queue = it.queue[end:]
	return &Batch{Rows: out}, nil
}

func (it *callProcedureIter) Close() error {
	if it.input == nil {
		return nil
	}
	return it.input.Close()
}

// callSubqueryIter implements CALL { ... } by cross-joining each Input
// row with the subquery's own, independently-planned result set — the
// same non-correlated shape planner.lowerCall builds the Subquery plan
// in (it never threads Input's bindings into the subquery plan itself).
type callSubqueryIter struct {
	input  Iterator
	sub    Iterator
	subAll []Row
	inner  *nestedLoopJoinIter
}

func newCallSubquery(input, sub Iterator) *callSubqueryIter {
	return &callSubqueryIter{input: input, sub: sub}
}

func (it *callSubqueryIter) Next(ctx context.Context) (*Batch, error) {
	if it.inner == nil {
		it.inner = newNestedLoopJoin(it.input, it.sub)
	}
	return it.inner.Next(ctx)
}

func (it *callSubqueryIter) Close() error {
	if it.inner != nil {
		return it.inner.Close()
	}
	err1 := it.input.Close()
	err2 := it.sub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
