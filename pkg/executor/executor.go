package executor

import (
	"context"
	"time"

	"github.com/nexusdb/nexus/pkg/catalog"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/txn"
	"github.com/nexusdb/nexus/pkg/types"
)

// Executor runs physical plans the planner produces against a live
// transaction, turning an Iterator's pulled batches into the
// QueryResult shape spec.md §6 defines for Engine.ExecuteCypher.
type Executor struct {
	plan *planner.Planner
}

// New builds an Executor over the given Planner.
func New(plan *planner.Planner) *Executor {
	return &Executor{plan: plan}
}

// resultColumns derives the final column order/names for a plan,
// mirroring projectionIter's own Alias/Variable/anonymous fallback
// naming so EXPLAIN output and executed results agree.
func resultColumns(root planner.Op) []string {
	proj, ok := root.(*planner.Projection)
	if !ok || proj.Star {
		return root.Vars()
	}
	cols := make([]string, len(proj.Items))
	for i, item := range proj.Items {
		name := projItemName(item)
		if name == "" {
			name = columnFallbackName(i)
		}
		cols[i] = name
	}
	return cols
}

func rowsToValues(rows []Row, cols []string) [][]types.Value {
	out := make([][]types.Value, len(rows))
	for i, row := range rows {
		vals := make([]types.Value, len(cols))
		for j, c := range cols {
			if v, ok := row[c]; ok {
				vals[j] = v
			} else {
				vals[j] = types.Null
			}
		}
		out[i] = vals
	}
	return out
}

// Run parses+plans src, compiles its physical plan against t/cat, drains
// every row, and returns the assembled QueryResult. Rows are
// materialized in full rather than streamed back to the caller — the
// RPC/CLI boundary spec.md §6 describes returns one complete
// QueryResult per query, not a cursor.
func (e *Executor) Run(ctx context.Context, src string, t *txn.Txn, cat *catalog.Catalog, params map[string]types.Value, procedures map[string]ProcedureFunc) (*types.QueryResult, error) {
	start := time.Now()
	res, err := e.plan.Plan(src)
	if err != nil {
		return nil, err
	}
	if res.Query.Explain && !res.Query.Profile {
		text := planner.Format(planner.Explain(res.Physical))
		return &types.QueryResult{Columns: []string{"plan"}, Rows: [][]types.Value{{types.NewString(text)}}}, nil
	}

	c := newCompiler(t, cat, params, procedures)
	var root Iterator
	if res.Query.Profile {
		root, err = CompileProfiled(c, res.Physical)
	} else {
		root, err = Compile(c, res.Physical)
	}
	if err != nil {
		return nil, err
	}
	defer root.Close()

	var all []Row
	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		b, err := root.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}
		all = append(all, b.Rows...)
	}

	cols := resultColumns(res.Physical.Op)
	elapsed := time.Since(start)
	qr := &types.QueryResult{
		Columns:         cols,
		Rows:            rowsToValues(all, cols),
		ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		ExecutionTimeUs: elapsed.Microseconds(),
	}
	qr.Stats.RowsReturned = int64(len(all))
	if res.Query.Profile {
		qr.Stats.OperatorStats = profileStats(res.Physical)
	}
	return qr, nil
}

// Explain plans src without executing it and renders its physical plan
// as indented text (EXPLAIN without PROFILE's actual row counts).
func (e *Executor) Explain(src string) (string, error) {
	res, err := e.plan.Plan(src)
	if err != nil {
		return "", err
	}
	return planner.Format(planner.Explain(res.Physical)), nil
}

// profileStats flattens a physical tree into QueryStats.OperatorStats,
// reading ActualRows/ElapsedUs back off nodes CompileProfiled's
// profilingIter wrappers populated during the drain above.
func profileStats(p *planner.Physical) []types.OperatorStat {
	var out []types.OperatorStat
	var walk func(n *planner.Physical)
	walk = func(n *planner.Physical) {
		out = append(out, types.OperatorStat{
			Operator:      n.Name,
			EstimatedRows: float64(n.EstRows),
			ActualRows:    int64(n.ActualRows),
			ElapsedUs:     n.ElapsedUs,
		})
		for _, ch := range n.Children {
			walk(ch)
		}
	}
	walk(p)
	return out
}
