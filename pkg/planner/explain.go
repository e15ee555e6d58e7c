package planner

import (
	"fmt"
	"strings"
)

// ExplainRow is one line of an EXPLAIN/PROFILE tree, spec.md §4.7's
// "physical plan as a tree with per-node cost/rowcount estimates" (and,
// for PROFILE, actual rows/elapsed time).
type ExplainRow struct {
	Depth      int
	Name       string
	EstRows    uint64
	EstCost    float64
	ActualRows uint64
	ElapsedUs  int64
	Profiled   bool
}

// Explain flattens a physical plan into EXPLAIN rows (no ActualRows/
// ElapsedUs — those are only populated once the executor has run the
// plan under PROFILE).
func Explain(p *Physical) []ExplainRow {
	var rows []ExplainRow
	var walk func(n *Physical, depth int)
	walk = func(n *Physical, depth int) {
		rows = append(rows, ExplainRow{Depth: depth, Name: n.Name, EstRows: n.EstRows, EstCost: n.EstCost})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(p, 0)
	return rows
}

// Profile is like Explain but includes each node's actual row count and
// elapsed microseconds, populated by the executor as it runs the plan
// under PROFILE.
func Profile(p *Physical) []ExplainRow {
	rows := Explain(p)
	var flat []*Physical
	var collect func(n *Physical)
	collect = func(n *Physical) {
		flat = append(flat, n)
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(p)
	for i := range rows {
		rows[i].ActualRows = flat[i].ActualRows
		rows[i].ElapsedUs = flat[i].ElapsedUs
		rows[i].Profiled = true
	}
	return rows
}

// Format renders EXPLAIN/PROFILE rows as indented text, the shape
// Engine.Explain and an EXPLAIN query's "plan" column return to a client.
func Format(rows []ExplainRow) string {
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(strings.Repeat("  ", r.Depth))
		sb.WriteString(r.Name)
		fmt.Fprintf(&sb, " (estRows=%d, estCost=%.1f", r.EstRows, r.EstCost)
		if r.Profiled {
			fmt.Fprintf(&sb, ", actualRows=%d, elapsed=%dus", r.ActualRows, r.ElapsedUs)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}
