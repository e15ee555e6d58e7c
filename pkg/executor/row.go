// Package executor turns a planner.Physical tree into a running query:
// a pull-based tree of Iterators over Rows, per spec.md §4.7. Operators
// never materialize the whole result unless an operator (Sort,
// Distinct, Aggregate) genuinely needs to see every row first.
package executor

import "github.com/nexusdb/nexus/pkg/types"

// batchSize bounds how many rows an operator accumulates before handing
// a Batch downstream — the pull granularity spec.md §4.7 describes
// operators exchanging, rather than one row at a time.
// batchSize is the pull granularity every iterator requests from its
// input. It is a var, not a const, so jit_parity_test.go can shrink it
// to 1 and confirm every operator's batch-boundary bookkeeping still
// agrees with the default-size run row-for-row.
var batchSize = 256

// Row is one bound-variable tuple. Values carry the same types.Value
// union QueryResult rows do (including the node/relationship/path
// kinds added for this), so a Projection's output needs no further
// conversion before becoming a result row.
type Row map[string]types.Value

func (r Row) clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Batch is the pull-based iterator exchange unit: a slice of rows
// sharing the same bound-variable shape.
type Batch struct {
	Rows []Row
}
