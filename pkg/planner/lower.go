package planner

import (
	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/nexuserr"
)

// Lower walks a parsed query's clause sequence and builds the logical
// plan tree spec.md §4.6 describes. UNION/UNION ALL continuations are
// lowered recursively and combined with a Union node.
func Lower(q *ast.Query) (Op, error) {
	var cur Op
	boundVars := map[string]bool{}

	for _, clause := range q.Clauses {
		var err error
		cur, err = lowerClause(cur, boundVars, clause)
		if err != nil {
			return nil, err
		}
	}
	if cur == nil {
		return nil, nexuserr.New(nexuserr.KindPlan, nexuserr.CodeUnsupportedPattern, "planner.Lower", "query has no clauses")
	}

	if q.Union != nil {
		right, err := Lower(q.Union.Query)
		if err != nil {
			return nil, err
		}
		cur = &Union{Left: cur, Right: right, All: q.Union.All}
	}
	return cur, nil
}

func lowerClause(cur Op, bound map[string]bool, clause ast.Clause) (Op, error) {
	switch c := clause.(type) {
	case *ast.MatchClause:
		return lowerMatch(cur, bound, c)
	case *ast.WithClause:
		return lowerWith(cur, bound, c)
	case *ast.ReturnClause:
		return lowerReturn(cur, bound, c)
	case *ast.UnwindClause:
		markBound(bound, c.As)
		return &Unwind{Input: requireInput(cur), Expr: c.Expr, As: c.As}, nil
	case *ast.CreateClause:
		for _, part := range c.Patterns {
			markBoundFromPattern(bound, part)
		}
		return &Create{Input: cur, Patterns: c.Patterns}, nil
	case *ast.MergeClause:
		markBoundFromPattern(bound, c.Pattern)
		return &Merge{Input: cur, Pattern: c.Pattern, OnCreate: c.OnCreate, OnMatch: c.OnMatch}, nil
	case *ast.SetClause:
		return &SetProps{Input: requireInput(cur), Items: c.Items}, nil
	case *ast.RemoveClause:
		return &RemoveProps{Input: requireInput(cur), Items: c.Items}, nil
	case *ast.DeleteClause:
		return &Delete{Input: requireInput(cur), Detach: c.Detach, Exprs: c.Exprs}, nil
	case *ast.CallClause:
		return lowerCall(cur, bound, c)
	default:
		return nil, nexuserr.New(nexuserr.KindPlan, nexuserr.CodeUnsupportedPattern, "planner.lowerClause", "unsupported clause type")
	}
}

// requireInput stands in for an implicit AllNodesScan-free empty input;
// clauses like SET/REMOVE/DELETE/RETURN never start a query on their
// own, so cur is always non-nil by the time they're reached.
func requireInput(cur Op) Op { return cur }

func lowerMatch(cur Op, bound map[string]bool, c *ast.MatchClause) (Op, error) {
	var matched Op
	for _, part := range c.Patterns {
		op, err := lowerPatternPart(bound, part, c.Hints)
		if err != nil {
			return nil, err
		}
		if matched == nil {
			matched = op
			continue
		}
		matched = joinOnSharedVars(matched, op)
	}
	if c.Where != nil {
		matched = &Selection{Input: matched, Predicate: c.Where}
	}
	if c.Optional {
		matched = &Optional{Input: matched}
	}
	if cur == nil {
		return matched, nil
	}
	return joinOnSharedVars(cur, matched), nil
}

// joinOnSharedVars combines two already-lowered operator chains. The
// concrete algorithm (hash or nested-loop) is chosen later in
// cost.go, based on cardinality estimates; here it's provisionally a
// HashJoin when a shared variable exists, else a cartesian
// NestedLoopJoin.
func joinOnSharedVars(left, right Op) Op {
	shared := sharedVars(left.Vars(), right.Vars())
	if len(shared) > 0 {
		return &HashJoin{Left: left, Right: right, Keys: shared}
	}
	return &NestedLoopJoin{Left: left, Right: right}
}

func sharedVars(a, b []string) []string {
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	var shared []string
	for _, v := range b {
		if set[v] {
			shared = append(shared, v)
		}
	}
	return shared
}

func lowerPatternPart(bound map[string]bool, part ast.PatternPart, hints []ast.IndexHint) (Op, error) {
	elem := part.Element
	first := elem.Nodes[0]
	op := lowerNodeScan(first, hints)
	markBound(bound, first.Variable)

	fromVar := first.Variable
	for i, rel := range elem.Rels {
		toNode := elem.Nodes[i+1]
		markBound(bound, toNode.Variable)
		dir := ExpandBoth
		switch rel.Direction {
		case ast.DirOut:
			dir = ExpandOut
		case ast.DirIn:
			dir = ExpandIn
		}
		if rel.MinHops != nil || rel.MaxHops != nil {
			min, max := 1, 0
			if rel.MinHops != nil {
				min = *rel.MinHops
			}
			if rel.MaxHops != nil {
				max = *rel.MaxHops
			}
			op = &VarLengthExpand{
				Input: op, FromVar: fromVar, RelVar: rel.Variable, ToVar: toNode.Variable,
				Types: rel.Types, Direction: dir, MinHops: min, MaxHops: max,
			}
		} else {
			op = &Expand{
				Input: op, FromVar: fromVar, RelVar: rel.Variable, ToVar: toNode.Variable,
				Types: rel.Types, Direction: dir,
			}
		}
		fromVar = toNode.Variable
	}
	return op, nil
}

func lowerNodeScan(n ast.NodePattern, hints []ast.IndexHint) Op {
	for _, h := range hints {
		if h.Variable != n.Variable {
			continue
		}
		switch h.Kind {
		case "INDEX":
			return &IndexSeek{Variable: n.Variable, Label: h.Label, Property: h.Property}
		case "SCAN":
			if len(n.Labels) > 0 {
				return &NodeByLabelScan{Variable: n.Variable, Label: n.Labels[0]}
			}
			return &AllNodesScan{Variable: n.Variable}
		}
	}
	if len(n.Labels) > 0 {
		return &NodeByLabelScan{Variable: n.Variable, Label: n.Labels[0]}
	}
	return &AllNodesScan{Variable: n.Variable}
}

func markBound(bound map[string]bool, name string) {
	if name != "" {
		bound[name] = true
	}
}

func markBoundFromPattern(bound map[string]bool, part ast.PatternPart) {
	for _, v := range patternVars(part) {
		markBound(bound, v)
	}
}

func lowerWith(cur Op, bound map[string]bool, c *ast.WithClause) (Op, error) {
	op := buildProjectionChain(requireInput(cur), c.Star, c.Distinct, c.Items, c.Where, c.OrderBy, c.Skip, c.Limit)
	for _, item := range c.Items {
		markBound(bound, projectionVarName(item))
	}
	return op, nil
}

func lowerReturn(cur Op, bound map[string]bool, c *ast.ReturnClause) (Op, error) {
	return buildProjectionChain(requireInput(cur), c.Star, c.Distinct, c.Items, nil, c.OrderBy, c.Skip, c.Limit), nil
}

// buildProjectionChain assembles the pipeline shared by WITH and
// RETURN: an Aggregate (when any projected item contains an aggregate
// function call, at any depth) or else a Projection, then Selection→
// Distinct→Sort→Skip→Limit.
func buildProjectionChain(input Op, star, distinct bool, items []ast.ReturnItem, where ast.Expr, orderBy []ast.OrderItem, skip, limit ast.Expr) Op {
	var op Op = input

	if hasAggregate(items) {
		groupBy, _ := splitAggregates(items)
		op = &Aggregate{Input: op, GroupBy: groupBy, Aggs: items}
	} else {
		op = &Projection{Input: op, Items: items, Star: star}
	}

	if where != nil {
		op = &Selection{Input: op, Predicate: where}
	}
	if distinct {
		op = &Distinct{Input: op}
	}
	if len(orderBy) > 0 {
		op = &Sort{Input: op, OrderBy: orderBy}
	}
	if skip != nil {
		op = &Skip{Input: op, Expr: skip}
	}
	if limit != nil {
		op = &Limit{Input: op, Expr: limit}
	}
	return op
}

func hasAggregate(items []ast.ReturnItem) bool {
	for _, item := range items {
		if containsAggregateCall(item.Expr) {
			return true
		}
	}
	return false
}

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"collect": true, "percentilecont": true, "percentiledisc": true,
	"stdev": true, "stdevp": true,
}

func containsAggregateCall(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.FunctionCall:
		if aggregateFuncs[lowerASCII(v.Name)] {
			return true
		}
		for _, arg := range v.Args {
			if containsAggregateCall(arg) {
				return true
			}
		}
	case *ast.BinaryExpr:
		return containsAggregateCall(v.Left) || containsAggregateCall(v.Right)
	case *ast.UnaryExpr:
		return containsAggregateCall(v.Operand)
	case *ast.PropertyAccess:
		return containsAggregateCall(v.Target)
	}
	return false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// splitAggregates separates the plain grouping expressions (items that
// carry no aggregate call) from the aggregate expressions themselves.
func splitAggregates(items []ast.ReturnItem) (groupBy []ast.Expr, aggs []ast.ReturnItem) {
	for _, item := range items {
		if containsAggregateCall(item.Expr) {
			aggs = append(aggs, item)
		} else {
			groupBy = append(groupBy, item.Expr)
		}
	}
	return
}

func lowerCall(cur Op, bound map[string]bool, c *ast.CallClause) (Op, error) {
	if c.Subquery != nil {
		sub, err := Lower(c.Subquery)
		if err != nil {
			return nil, err
		}
		return &CallSubquery{Input: cur, Subquery: sub}, nil
	}
	for _, y := range c.Yield {
		markBound(bound, y)
	}
	return &CallProcedure{Input: cur, Procedure: c.Procedure, Args: c.Args, Yield: c.Yield}, nil
}
