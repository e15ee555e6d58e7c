package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/types"
)

// rowKey builds a hashable string key from a row's values over cols,
// used by Distinct and HashJoin's build side. Not collision-proof, just
// stable enough that equal Values always produce equal keys.
func rowKey(row Row, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(valueKey(row[c]))
		b.WriteByte('|')
	}
	return b.String()
}

func valueKey(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return "null"
	case types.KindBool:
		return fmt.Sprintf("b:%v", v.Bool)
	case types.KindInt:
		return fmt.Sprintf("i:%d", v.Int)
	case types.KindFloat:
		return fmt.Sprintf("f:%v", v.Float)
	case types.KindString:
		return "s:" + v.Str
	case types.KindNode:
		return fmt.Sprintf("n:%d", v.Node.ID)
	case types.KindRelationship:
		return fmt.Sprintf("r:%d", v.Rel.ID)
	case types.KindList:
		var b strings.Builder
		b.WriteString("l:[")
		for _, e := range v.List {
			b.WriteString(valueKey(e))
			b.WriteByte(',')
		}
		b.WriteByte(']')
		return b.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// distinctIter hash-dedups full rows, keyed on every variable Input
// binds. No spill to disk — acceptable because the result sets this
// engine targets fit in memory (see DESIGN.md Open Question decisions).
type distinctIter struct {
	input Iterator
	cols  []string
	seen  map[string]bool
}

func newDistinct(op *planner.Distinct, input Iterator) Iterator {
	return &distinctIter{input: input, cols: op.Input.Vars(), seen: map[string]bool{}}
}

func (it *distinctIter) Next(ctx context.Context) (*Batch, error) {
	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		b, err := it.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, nil
		}
		rows := make([]Row, 0, len(b.Rows))
		for _, row := range b.Rows {
			k := rowKey(row, it.cols)
			if it.seen[k] {
				continue
			}
			it.seen[k] = true
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			return &Batch{Rows: rows}, nil
		}
	}
}

func (it *distinctIter) Close() error { return it.input.Close() }

// aggAccum accumulates one (group, aggregate-item) pair's running
// state across every row of the group.
type aggAccum struct {
	count  int64
	sum    float64
	isFlt  bool
	min    types.Value
	minSet bool
	max    types.Value
	maxSet bool
	list   []types.Value
	distSeen map[string]bool
}

// aggregateIter is a blocking (non-streaming) group-by: it must see
// every input row before any group's final value is known, so Next
// drains Input entirely on its first call, then emits finalized groups
// batchSize at a time. Only a direct aggregate FunctionCall as a
// top-level RETURN/WITH item is supported (e.g. `count(n)`, not
// `count(n) + 1`) — see DESIGN.md Open Question decisions.
type aggregateIter struct {
	c     *Compiler
	op    *planner.Aggregate
	input Iterator

	accums  map[string][]*aggAccum
	keyRows map[string]Row
	order   []string
	started bool
	emitted int
}

func newAggregate(c *Compiler, op *planner.Aggregate, input Iterator) *aggregateIter {
	return &aggregateIter{c: c, op: op, input: input, accums: map[string][]*aggAccum{}, keyRows: map[string]Row{}}
}

func (it *aggregateIter) Next(ctx context.Context) (*Batch, error) {
	if !it.started {
		if err := it.drain(ctx); err != nil {
			return nil, err
		}
		it.started = true
		if len(it.op.GroupBy) == 0 && len(it.accums) == 0 {
			// No GROUP BY and no input rows: Cypher still emits exactly one
			// row from an all-empty accumulator (count(*) = 0, sum = 0,
			// collect = [], min/max = NULL), per spec.md §4.7/§8.
			it.accums[""] = make([]*aggAccum, len(it.op.Aggs))
			it.keyRows[""] = Row{}
		}
		it.order = make([]string, 0, len(it.accums))
		for k := range it.accums {
			it.order = append(it.order, k)
		}
		sort.Strings(it.order)
	}
	if it.emitted >= len(it.order) {
		return nil, nil
	}
	end := it.emitted + batchSize
	if end > len(it.order) {
		end = len(it.order)
	}
	rows := make([]Row, 0, end-it.emitted)
	for _, k := range it.order[it.emitted:end] {
		row, err := it.finalize(k)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	it.emitted = end
	return &Batch{Rows: rows}, nil
}

func (it *aggregateIter) drain(ctx context.Context) error {
	for {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		b, err := it.input.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		for _, row := range b.Rows {
			if err := it.accumulate(row); err != nil {
				return err
			}
		}
	}
}

func (it *aggregateIter) accumulate(row Row) error {
	var keyBuf strings.Builder
	for _, g := range it.op.GroupBy {
		v, err := Eval(it.c.ec, row, g)
		if err != nil {
			return err
		}
		keyBuf.WriteString(valueKey(v))
		keyBuf.WriteByte('|')
	}
	key := keyBuf.String()
	accs, ok := it.accums[key]
	if !ok {
		accs = make([]*aggAccum, len(it.op.Aggs))
		it.accums[key] = accs
		it.keyRows[key] = row
	}

	for i, item := range it.op.Aggs {
		fc, isAgg := aggregateCallOf(item.Expr)
		if !isAgg {
			continue
		}
		if accs[i] == nil {
			accs[i] = &aggAccum{distSeen: map[string]bool{}}
		}
		if err := applyAgg(it.c.ec, row, accs[i], fc); err != nil {
			return err
		}
	}
	return nil
}

func (it *aggregateIter) finalize(key string) (Row, error) {
	out := Row{}
	repRow := it.keyRows[key]
	accs := it.accums[key]
	for i, item := range it.op.Aggs {
		name := projItemName(item)
		if name == "" {
			name = columnFallbackName(i)
		}
		if fc, isAgg := aggregateCallOf(item.Expr); isAgg {
			out[name] = finalizeAgg(accs[i], fc)
			continue
		}
		v, err := Eval(it.c.ec, repRow, item.Expr)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (it *aggregateIter) Close() error { return it.input.Close() }

// aggregateCallOf recognizes a top-level aggregate call, matching
// planner's containsAggregateCall at the item-expression root.
func aggregateCallOf(e ast.Expr) (*ast.FunctionCall, bool) {
	fc, ok := e.(*ast.FunctionCall)
	if !ok {
		return nil, false
	}
	switch strings.ToLower(fc.Name) {
	case "count", "sum", "avg", "min", "max", "collect":
		return fc, true
	default:
		return nil, false
	}
}

func applyAgg(ec *evalCtx, row Row, acc *aggAccum, fc *ast.FunctionCall) error {
	name := strings.ToLower(fc.Name)
	if name == "count" && len(fc.Args) == 0 {
		acc.count++
		return nil
	}
	if len(fc.Args) != 1 {
		return errf(nexuserr.CodeUnsupportedPattern, "executor.Aggregate", fc.Name+"() takes exactly one argument")
	}
	v, err := Eval(ec, row, fc.Args[0])
	if err != nil {
		return err
	}
	if v.IsNull() {
		return nil // aggregate functions skip NULL inputs, per Cypher semantics
	}
	if fc.Distinct {
		k := valueKey(v)
		if acc.distSeen[k] {
			return nil
		}
		acc.distSeen[k] = true
	}

	switch name {
	case "count":
		acc.count++
	case "sum", "avg":
		if !isNumeric(v) {
			return errf(nexuserr.CodeTypeMismatch, "executor.Aggregate", name+"() requires a numeric argument")
		}
		acc.sum += asFloat(v)
		acc.count++
		if v.Kind == types.KindFloat {
			acc.isFlt = true
		}
	case "min":
		if !acc.minSet {
			acc.min, acc.minSet = v, true
			break
		}
		if cmp, ok := compareValues(v, acc.min); ok && cmp < 0 {
			acc.min = v
		}
	case "max":
		if !acc.maxSet {
			acc.max, acc.maxSet = v, true
			break
		}
		if cmp, ok := compareValues(v, acc.max); ok && cmp > 0 {
			acc.max = v
		}
	case "collect":
		acc.list = append(acc.list, v)
	}
	return nil
}

func finalizeAgg(acc *aggAccum, fc *ast.FunctionCall) types.Value {
	if acc == nil {
		acc = &aggAccum{}
	}
	switch strings.ToLower(fc.Name) {
	case "count":
		return types.NewInt(acc.count)
	case "sum":
		if acc.isFlt {
			return types.NewFloat(acc.sum)
		}
		return types.NewInt(int64(acc.sum))
	case "avg":
		if acc.count == 0 {
			return types.Null
		}
		return types.NewFloat(acc.sum / float64(acc.count))
	case "min":
		if !acc.minSet {
			return types.Null
		}
		return acc.min
	case "max":
		if !acc.maxSet {
			return types.Null
		}
		return acc.max
	case "collect":
		return types.NewList(acc.list)
	default:
		return types.Null
	}
}

// sortIter materializes Input fully, sorts by OrderBy, then streams
// batchSize rows at a time. ORDER BY inherently needs the whole input,
// so this is the one operator besides Aggregate/Distinct that blocks.
type sortIter struct {
	c       *Compiler
	op      *planner.Sort
	input   Iterator
	rows    []Row
	started bool
	pos     int
	err     error
}

func newSort(c *Compiler, op *planner.Sort, input Iterator) *sortIter {
	return &sortIter{c: c, op: op, input: input}
}

func (it *sortIter) Next(ctx context.Context) (*Batch, error) {
	if !it.started {
		for {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			b, err := it.input.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			it.rows = append(it.rows, b.Rows...)
		}
		it.started = true
		sort.SliceStable(it.rows, func(i, j int) bool {
			return it.less(it.rows[i], it.rows[j])
		})
		if it.err != nil {
			return nil, it.err
		}
	}
	if it.pos >= len(it.rows) {
		return nil, nil
	}
	end := it.pos + batchSize
	if end > len(it.rows) {
		end = len(it.rows)
	}
	out := it.rows[it.pos:end]
	it.pos = end
	return &Batch{Rows: out}, nil
}

func (it *sortIter) less(a, b Row) bool {
	for _, ord := range it.op.OrderBy {
		va, err := Eval(it.c.ec, a, ord.Expr)
		if err != nil {
			it.err = err
			return false
		}
		vb, err := Eval(it.c.ec, b, ord.Expr)
		if err != nil {
			it.err = err
			return false
		}

		// NULL sorts last on ASC and first on DESC, per spec.md §4.7 —
		// distinct from compareValues' three-valued-logic "not
		// comparable" used by predicates, so it's handled here instead
		// of folded into compareValues.
		aNull, bNull := va.IsNull(), vb.IsNull()
		if aNull || bNull {
			if aNull == bNull {
				continue
			}
			if ord.Descending {
				return aNull
			}
			return bNull
		}

		cmp, ok := compareValues(va, vb)
		if !ok {
			continue
		}
		if cmp == 0 {
			continue
		}
		if ord.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

func (it *sortIter) Close() error { return it.input.Close() }

type skipIter struct {
	c       *Compiler
	op      *planner.Skip
	input   Iterator
	n       int64
	resolved bool
	skipped int64
}

func newSkip(c *Compiler, op *planner.Skip, input Iterator) *skipIter {
	return &skipIter{c: c, op: op, input: input}
}

func (it *skipIter) Next(ctx context.Context) (*Batch, error) {
	if !it.resolved {
		v, err := Eval(it.c.ec, nil, it.op.Expr)
		if err != nil {
			return nil, err
		}
		if v.Kind == types.KindInt {
			it.n = v.Int
		}
		it.resolved = true
	}
	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		b, err := it.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, nil
		}
		if it.skipped >= it.n {
			return b, nil
		}
		remaining := it.n - it.skipped
		if remaining >= int64(len(b.Rows)) {
			it.skipped += int64(len(b.Rows))
			continue
		}
		rows := b.Rows[remaining:]
		it.skipped = it.n
		if len(rows) > 0 {
			return &Batch{Rows: rows}, nil
		}
	}
}

func (it *skipIter) Close() error { return it.input.Close() }

type limitIter struct {
	c        *Compiler
	op       *planner.Limit
	input    Iterator
	n        int64
	resolved bool
	emitted  int64
}

func newLimit(c *Compiler, op *planner.Limit, input Iterator) *limitIter {
	return &limitIter{c: c, op: op, input: input}
}

func (it *limitIter) Next(ctx context.Context) (*Batch, error) {
	if !it.resolved {
		v, err := Eval(it.c.ec, nil, it.op.Expr)
		if err != nil {
			return nil, err
		}
		if v.Kind == types.KindInt {
			it.n = v.Int
		}
		it.resolved = true
	}
	if it.emitted >= it.n {
		return nil, nil
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	b, err := it.input.Next(ctx)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	remaining := it.n - it.emitted
	if int64(len(b.Rows)) > remaining {
		b.Rows = b.Rows[:remaining]
	}
	it.emitted += int64(len(b.Rows))
	return b, nil
}

func (it *limitIter) Close() error { return it.input.Close() }

// optionalIter passes every Input row through; if Input is entirely
// empty it emits a single all-NULL row for Input's variables, matching
// OPTIONAL MATCH semantics.
type optionalIter struct {
	op      *planner.Optional
	input   Iterator
	sawRow  bool
	emitted bool
	closed  bool
}

func newOptional(op *planner.Optional, input Iterator) *optionalIter {
	return &optionalIter{op: op, input: input}
}

func (it *optionalIter) Next(ctx context.Context) (*Batch, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	b, err := it.input.Next(ctx)
	if err != nil {
		return nil, err
	}
	if b != nil && len(b.Rows) > 0 {
		it.sawRow = true
		return b, nil
	}
	if !it.sawRow && !it.emitted {
		it.emitted = true
		row := Row{}
		for _, v := range it.op.Input.Vars() {
			row[v] = types.Null
		}
		return &Batch{Rows: []Row{row}}, nil
	}
	return nil, nil
}

func (it *optionalIter) Close() error { return it.input.Close() }

// unwindIter expands a list-valued expression into one output row per
// element, carrying forward the rest of the source row's bindings.
// pending holds source rows not yet fully unwound; cur/curRow/pos
// track progress through the row currently being expanded.
type unwindIter struct {
	c       *Compiler
	op      *planner.Unwind
	input   Iterator
	pending  []Row
	cur      []types.Value
	curRow   Row
	pos      int
	inputEOF bool
	err      error
}

func newUnwind(c *Compiler, op *planner.Unwind, input Iterator) *unwindIter {
	return &unwindIter{c: c, op: op, input: input}
}

func (it *unwindIter) Next(ctx context.Context) (*Batch, error) {
	var rows []Row
	for len(rows) < batchSize {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		if it.pos >= len(it.cur) {
			if !it.advanceRow(ctx) {
				if it.err != nil {
					return nil, it.err
				}
				break
			}
			continue
		}
		next := it.curRow.clone()
		next[it.op.As] = it.cur[it.pos]
		it.pos++
		rows = append(rows, next)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &Batch{Rows: rows}, nil
}

// advanceRow loads the next source row into curRow/cur, refilling
// pending from Input when it runs dry. Returns false when there is
// nothing left to unwind (check err for a real failure vs plain EOF).
func (it *unwindIter) advanceRow(ctx context.Context) bool {
	for len(it.pending) == 0 {
		if it.inputEOF {
			return false
		}
		b, err := it.input.Next(ctx)
		if err != nil {
			it.err = err
			return false
		}
		if b == nil {
			it.inputEOF = true
			return false
		}
		it.pending = append(it.pending, b.Rows...)
	}
	it.curRow = it.pending[0]
	it.pending = it.pending[1:]

	v, err := Eval(it.c.ec, it.curRow, it.op.Expr)
	if err != nil {
		it.err = err
		return false
	}
	switch {
	case v.Kind == types.KindList:
		it.cur = v.List
	case v.IsNull():
		it.cur = nil
	default:
		it.cur = []types.Value{v}
	}
	it.pos = 0
	return true
}

func (it *unwindIter) Close() error { return it.input.Close() }

// unionIter runs Left fully then Right, deduping across both when
// All is false (UNION, not UNION ALL).
type unionIter struct {
	left, right Iterator
	all         bool
	seen        map[string]bool
	onLeft      bool
	started     bool
}

func newUnion(op *planner.Union, left, right Iterator) *unionIter {
	return &unionIter{left: left, right: right, all: op.All, seen: map[string]bool{}, onLeft: true}
}

func (it *unionIter) Next(ctx context.Context) (*Batch, error) {
	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		var b *Batch
		var err error
		if it.onLeft {
			b, err = it.left.Next(ctx)
			if err == nil && b == nil {
				it.onLeft = false
				continue
			}
		} else {
			b, err = it.right.Next(ctx)
		}
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, nil
		}
		if it.all {
			return b, nil
		}
		var rows []Row
		for _, row := range b.Rows {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			k := rowKey(row, keys)
			if it.seen[k] {
				continue
			}
			it.seen[k] = true
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			return &Batch{Rows: rows}, nil
		}
	}
}

func (it *unionIter) Close() error {
	err1 := it.left.Close()
	err2 := it.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
