// Package planner lowers a parsed Cypher ast.Query into a logical plan,
// then a cost-annotated physical plan, per spec.md §4.6. The operator
// set below is the exact list spec.md §4.6 names; lower.go builds it
// from the AST, cost.go picks scan/join strategies and annotates row
// and cost estimates, and cache.go memoizes the result behind a plan
// fingerprint.
package planner

import "github.com/nexusdb/nexus/pkg/cypher/ast"

// Op is implemented by every logical/physical plan node. Vars reports
// the row-column variables this operator's output binds, used to infer
// join keys and resolve property access in later operators.
type Op interface {
	opNode()
	Children() []Op
	Vars() []string
}

type base struct{}

func (base) opNode() {}

// AllNodesScan walks every live node, skipping free slots.
type AllNodesScan struct {
	base
	Variable string
}

func (s *AllNodesScan) Children() []Op { return nil }
func (s *AllNodesScan) Vars() []string { return []string{s.Variable} }

// NodeByLabelScan walks a single label's bitmap.
type NodeByLabelScan struct {
	base
	Variable string
	Label    string
}

func (s *NodeByLabelScan) Children() []Op { return nil }
func (s *NodeByLabelScan) Vars() []string { return []string{s.Variable} }

// IndexSeek reads matching node ids directly from a property or vector
// index instead of scanning a label bitmap.
type IndexSeek struct {
	base
	Variable  string
	Label     string
	Property  string
	IndexName string
	Predicate ast.Expr // the comparison this seek satisfies
}

func (s *IndexSeek) Children() []Op { return nil }
func (s *IndexSeek) Vars() []string { return []string{s.Variable} }

type ExpandDir int

const (
	ExpandOut ExpandDir = iota
	ExpandIn
	ExpandBoth
)

// Expand follows one relationship hop from Input's bound node variable.
type Expand struct {
	base
	Input        Op
	FromVar      string
	RelVar       string
	ToVar        string
	Types        []string
	Direction    ExpandDir
}

func (e *Expand) Children() []Op { return []Op{e.Input} }
func (e *Expand) Vars() []string { return appendVars(e.Input.Vars(), e.RelVar, e.ToVar) }

// VarLengthExpand is Expand generalized to a [min..max] hop range with
// NO_REPEAT_RELS uniqueness (spec.md §4.7 default).
type VarLengthExpand struct {
	base
	Input     Op
	FromVar   string
	RelVar    string
	ToVar     string
	Types     []string
	Direction ExpandDir
	MinHops   int
	MaxHops   int // 0 means unbounded; the executor caps it at a fixed 15 hops
}

func (e *VarLengthExpand) Children() []Op { return []Op{e.Input} }
func (e *VarLengthExpand) Vars() []string { return appendVars(e.Input.Vars(), e.RelVar, e.ToVar) }

// ShortestPath is a breadth-first search by hop count between two
// already-bound node variables; relationship weights and heuristics are
// not used (there is no Dijkstra or A* variant).
type ShortestPath struct {
	base
	Left, Right Op
	FromVar     string
	ToVar       string
	PathVar     string
	RelTypes    []string
	All         bool // AllShortestPaths vs single ShortestPath
}

func (s *ShortestPath) Children() []Op { return []Op{s.Left, s.Right} }
func (s *ShortestPath) Vars() []string {
	return appendVars(appendVars(s.Left.Vars(), s.Right.Vars()...), s.PathVar)
}

// Selection filters Input's rows by Predicate.
type Selection struct {
	base
	Input     Op
	Predicate ast.Expr
}

func (s *Selection) Children() []Op { return []Op{s.Input} }
func (s *Selection) Vars() []string { return s.Input.Vars() }

// Projection computes RETURN/WITH expressions over Input's rows.
type Projection struct {
	base
	Input Op
	Items []ast.ReturnItem
	Star  bool
}

func (p *Projection) Children() []Op { return []Op{p.Input} }
func (p *Projection) Vars() []string {
	if p.Star {
		return p.Input.Vars()
	}
	vars := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		vars = append(vars, projectionVarName(item))
	}
	return vars
}

func projectionVarName(item ast.ReturnItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if v, ok := item.Expr.(*ast.Variable); ok {
		return v.Name
	}
	return ""
}

// Distinct hash-deduplicates Input's rows on the full projected tuple.
type Distinct struct {
	base
	Input Op
}

func (d *Distinct) Children() []Op { return []Op{d.Input} }
func (d *Distinct) Vars() []string { return d.Input.Vars() }

// Aggregate is a streaming group-by; GroupBy may be empty (whole-input
// aggregation, e.g. a bare `count(*)`).
type Aggregate struct {
	base
	Input   Op
	GroupBy []ast.Expr
	Aggs    []ast.ReturnItem
}

func (a *Aggregate) Children() []Op { return []Op{a.Input} }
func (a *Aggregate) Vars() []string {
	vars := make([]string, 0, len(a.Aggs))
	for _, item := range a.Aggs {
		vars = append(vars, projectionVarName(item))
	}
	return vars
}

type Sort struct {
	base
	Input   Op
	OrderBy []ast.OrderItem
}

func (s *Sort) Children() []Op { return []Op{s.Input} }
func (s *Sort) Vars() []string { return s.Input.Vars() }

type Skip struct {
	base
	Input Op
	Expr  ast.Expr
}

func (s *Skip) Children() []Op { return []Op{s.Input} }
func (s *Skip) Vars() []string { return s.Input.Vars() }

type Limit struct {
	base
	Input Op
	Expr  ast.Expr
}

func (l *Limit) Children() []Op { return []Op{l.Input} }
func (l *Limit) Vars() []string { return l.Input.Vars() }

// Optional marks Input as an OPTIONAL MATCH: unmatched rows still flow
// through with NULLs bound to Input's variables.
type Optional struct {
	base
	Input Op
}

func (o *Optional) Children() []Op { return []Op{o.Input} }
func (o *Optional) Vars() []string { return o.Input.Vars() }

type Unwind struct {
	base
	Input Op
	Expr  ast.Expr
	As    string
}

func (u *Unwind) Children() []Op { return []Op{u.Input} }
func (u *Unwind) Vars() []string { return appendVars(u.Input.Vars(), u.As) }

type Union struct {
	base
	Left, Right Op
	All         bool
}

func (u *Union) Children() []Op { return []Op{u.Left, u.Right} }
func (u *Union) Vars() []string { return u.Left.Vars() }

// HashJoin probes a hash table built over Left on Keys with each Right
// row; there is no Bloom-filter pre-check on the probe side.
type HashJoin struct {
	base
	Left, Right Op
	Keys        []string
}

func (j *HashJoin) Children() []Op { return []Op{j.Left, j.Right} }
func (j *HashJoin) Vars() []string { return appendVars(j.Left.Vars(), j.Right.Vars()...) }

// MergeJoin requires both inputs sorted on Keys.
type MergeJoin struct {
	base
	Left, Right Op
	Keys        []string
}

func (j *MergeJoin) Children() []Op { return []Op{j.Left, j.Right} }
func (j *MergeJoin) Vars() []string { return appendVars(j.Left.Vars(), j.Right.Vars()...) }

// NestedLoopJoin is the fallback join with no usable key or sort order.
type NestedLoopJoin struct {
	base
	Left, Right Op
}

func (j *NestedLoopJoin) Children() []Op { return []Op{j.Left, j.Right} }
func (j *NestedLoopJoin) Vars() []string { return appendVars(j.Left.Vars(), j.Right.Vars()...) }

type CallProcedure struct {
	base
	Input     Op // nil for a standalone CALL at the start of a query
	Procedure string
	Args      []ast.Expr
	Yield     []string
}

func (c *CallProcedure) Children() []Op {
	if c.Input == nil {
		return nil
	}
	return []Op{c.Input}
}
func (c *CallProcedure) Vars() []string {
	if len(c.Yield) > 0 {
		return c.Yield
	}
	if c.Input != nil {
		return c.Input.Vars()
	}
	return nil
}

// CallSubquery runs Subquery once per Input row (CALL { ... }).
type CallSubquery struct {
	base
	Input    Op
	Subquery Op
}

func (c *CallSubquery) Children() []Op { return []Op{c.Input, c.Subquery} }
func (c *CallSubquery) Vars() []string { return appendVars(c.Input.Vars(), c.Subquery.Vars()...) }

type Create struct {
	base
	Input    Op // nil for a standalone CREATE
	Patterns []ast.PatternPart
}

func (c *Create) Children() []Op {
	if c.Input == nil {
		return nil
	}
	return []Op{c.Input}
}
func (c *Create) Vars() []string {
	vars := []string{}
	if c.Input != nil {
		vars = c.Input.Vars()
	}
	for _, part := range c.Patterns {
		vars = appendVars(vars, patternVars(part)...)
	}
	return vars
}

func patternVars(part ast.PatternPart) []string {
	var vars []string
	if part.Variable != "" {
		vars = append(vars, part.Variable)
	}
	for _, n := range part.Element.Nodes {
		if n.Variable != "" {
			vars = append(vars, n.Variable)
		}
	}
	for _, r := range part.Element.Rels {
		if r.Variable != "" {
			vars = append(vars, r.Variable)
		}
	}
	return vars
}

type Merge struct {
	base
	Input    Op
	Pattern  ast.PatternPart
	OnCreate []ast.SetItem
	OnMatch  []ast.SetItem
}

func (m *Merge) Children() []Op {
	if m.Input == nil {
		return nil
	}
	return []Op{m.Input}
}
func (m *Merge) Vars() []string {
	vars := []string{}
	if m.Input != nil {
		vars = m.Input.Vars()
	}
	return appendVars(vars, patternVars(m.Pattern)...)
}

type SetProps struct {
	base
	Input Op
	Items []ast.SetItem
}

func (s *SetProps) Children() []Op { return []Op{s.Input} }
func (s *SetProps) Vars() []string { return s.Input.Vars() }

type RemoveProps struct {
	base
	Input Op
	Items []ast.RemoveItem
}

func (r *RemoveProps) Children() []Op { return []Op{r.Input} }
func (r *RemoveProps) Vars() []string { return r.Input.Vars() }

type Delete struct {
	base
	Input  Op
	Detach bool
	Exprs  []ast.Expr
}

func (d *Delete) Children() []Op { return []Op{d.Input} }
func (d *Delete) Vars() []string { return d.Input.Vars() }

func appendVars(vars []string, more ...string) []string {
	for _, v := range more {
		if v == "" {
			continue
		}
		vars = append(vars, v)
	}
	return vars
}
