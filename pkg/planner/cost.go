package planner

import (
	"github.com/nexusdb/nexus/pkg/catalog"
	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// selectivity is the fallback fraction of rows a Selection or an
// equality IndexSeek is assumed to pass when no histogram is
// available; spec.md §4.6 names "histogram buckets" as a future
// statistics source but the catalog doesn't carry them yet (see
// DESIGN.md Open Question decisions).
const (
	defaultSelectivity  = 0.1
	unknownLabelRows    = 1000
	unknownNodeRows     = 10000
	avgFanoutPerNode    = 4
)

// Stats is the catalog/index surface the cost model reads cardinality
// estimates from. A narrow interface keeps pkg/planner testable without
// a live catalog+index pair.
type Stats interface {
	SchemaVersion() (uint64, error)
	LabelCardinality(label string) (uint64, bool)
	TotalNodes() uint64
	IndexFor(label, property string) (types.IndexDefinition, bool)
}

// catalogStats is the production Stats backed by a real catalog and
// index manager.
type catalogStats struct {
	cat *catalog.Catalog
	idx *index.Manager
}

// NewCatalogStats builds the Stats implementation the engine wires into
// a Planner.
func NewCatalogStats(cat *catalog.Catalog, idx *index.Manager) Stats {
	return &catalogStats{cat: cat, idx: idx}
}

func (s *catalogStats) SchemaVersion() (uint64, error) { return s.cat.SchemaVersion() }

func (s *catalogStats) LabelCardinality(label string) (uint64, bool) {
	id, ok, err := s.cat.LookupLabel(label)
	if err != nil || !ok {
		return 0, false
	}
	return s.idx.Labels().Count(id), true
}

func (s *catalogStats) TotalNodes() uint64 {
	labels, err := s.cat.Labels()
	if err != nil {
		return unknownNodeRows
	}
	var total uint64
	for id := range labels {
		total += s.idx.Labels().Count(id)
	}
	if total == 0 {
		return unknownNodeRows
	}
	return total
}

func (s *catalogStats) IndexFor(label, property string) (types.IndexDefinition, bool) {
	defs, err := s.cat.ListIndexes()
	if err != nil {
		return types.IndexDefinition{}, false
	}
	labelID, ok, err := s.cat.LookupLabel(label)
	if err != nil || !ok {
		return types.IndexDefinition{}, false
	}
	propID, ok, err := s.cat.LookupPropertyKey(property)
	if err != nil || !ok {
		return types.IndexDefinition{}, false
	}
	for _, d := range defs {
		if d.Label == labelID && d.Property == propID {
			return d, true
		}
	}
	return types.IndexDefinition{}, false
}

// Physical is a cost-annotated logical operator: the join algorithm and
// scan strategy chosen at this node, plus its estimated output
// cardinality and cumulative cost, the shape EXPLAIN/PROFILE render.
type Physical struct {
	Op       Op
	Name     string // e.g. "NodeByLabelScan", "HashJoin"
	EstRows  uint64
	EstCost  float64
	Children []*Physical

	// Filled in only by PROFILE, after execution.
	ActualRows uint64
	ElapsedUs  int64
}

// Annotate walks a logical plan bottom-up, picking a join algorithm by
// comparing estimated cardinalities and propagating row/cost estimates
// up the tree. It does not turn label or property scans into index
// seeks: an IndexSeek comes only from a USING INDEX hint at lowering,
// and Annotate checks that the hinted index exists.
func Annotate(op Op, stats Stats) (*Physical, error) {
	switch o := op.(type) {
	case *AllNodesScan:
		rows := stats.TotalNodes()
		return &Physical{Op: o, Name: "AllNodesScan", EstRows: rows, EstCost: float64(rows)}, nil

	case *NodeByLabelScan:
		rows, ok := stats.LabelCardinality(o.Label)
		if !ok {
			rows = unknownLabelRows
		}
		return &Physical{Op: o, Name: "NodeByLabelScan", EstRows: rows, EstCost: float64(rows)}, nil

	case *IndexSeek:
		rows, ok := stats.LabelCardinality(o.Label)
		if !ok {
			rows = unknownLabelRows
		}
		rows = uint64(float64(rows) * defaultSelectivity)
		if rows == 0 {
			rows = 1
		}
		if def, ok := stats.IndexFor(o.Label, o.Property); ok {
			o.IndexName = def.Name
		} else {
			return nil, nexuserr.New(nexuserr.KindPlan, nexuserr.CodeMissingIndexForHint,
				"planner.Annotate", "no index on "+o.Label+"."+o.Property+" for USING INDEX hint")
		}
		return &Physical{Op: o, Name: "IndexSeek", EstRows: rows, EstCost: float64(rows) * 0.1}, nil

	case *Expand:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		rows := in.EstRows * avgFanoutPerNode
		return &Physical{Op: o, Name: "Expand", EstRows: rows, EstCost: in.EstCost + float64(rows), Children: []*Physical{in}}, nil

	case *VarLengthExpand:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		hops := o.MaxHops
		if hops == 0 {
			hops = 5
		}
		rows := in.EstRows
		for i := 0; i < hops; i++ {
			rows *= avgFanoutPerNode
		}
		return &Physical{Op: o, Name: "VarLengthExpand", EstRows: rows, EstCost: in.EstCost + float64(rows), Children: []*Physical{in}}, nil

	case *ShortestPath:
		left, err := Annotate(o.Left, stats)
		if err != nil {
			return nil, err
		}
		right, err := Annotate(o.Right, stats)
		if err != nil {
			return nil, err
		}
		rows := minUint64(left.EstRows, right.EstRows)
		return &Physical{Op: o, Name: "ShortestPath", EstRows: rows, EstCost: left.EstCost + right.EstCost, Children: []*Physical{left, right}}, nil

	case *Selection:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		rows := uint64(float64(in.EstRows) * defaultSelectivity)
		if rows == 0 {
			rows = 1
		}
		return &Physical{Op: o, Name: "Selection", EstRows: rows, EstCost: in.EstCost + float64(in.EstRows), Children: []*Physical{in}}, nil

	case *Projection:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		return &Physical{Op: o, Name: "Projection", EstRows: in.EstRows, EstCost: in.EstCost + float64(in.EstRows), Children: []*Physical{in}}, nil

	case *Distinct:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		return &Physical{Op: o, Name: "Distinct", EstRows: in.EstRows, EstCost: in.EstCost + float64(in.EstRows), Children: []*Physical{in}}, nil

	case *Aggregate:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		rows := in.EstRows
		if len(o.GroupBy) == 0 {
			rows = 1
		} else {
			rows = uint64(float64(in.EstRows) * defaultSelectivity)
			if rows == 0 {
				rows = 1
			}
		}
		return &Physical{Op: o, Name: "Aggregate", EstRows: rows, EstCost: in.EstCost + float64(in.EstRows), Children: []*Physical{in}}, nil

	case *Sort:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		cost := in.EstCost + float64(in.EstRows)*logApprox(in.EstRows)
		return &Physical{Op: o, Name: "Sort", EstRows: in.EstRows, EstCost: cost, Children: []*Physical{in}}, nil

	case *Skip:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		return &Physical{Op: o, Name: "Skip", EstRows: in.EstRows, EstCost: in.EstCost, Children: []*Physical{in}}, nil

	case *Limit:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		return &Physical{Op: o, Name: "Limit", EstRows: in.EstRows, EstCost: in.EstCost, Children: []*Physical{in}}, nil

	case *Optional:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		return &Physical{Op: o, Name: "Optional", EstRows: in.EstRows, EstCost: in.EstCost, Children: []*Physical{in}}, nil

	case *Unwind:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		rows := in.EstRows * 10
		return &Physical{Op: o, Name: "Unwind", EstRows: rows, EstCost: in.EstCost + float64(rows), Children: []*Physical{in}}, nil

	case *Union:
		left, err := Annotate(o.Left, stats)
		if err != nil {
			return nil, err
		}
		right, err := Annotate(o.Right, stats)
		if err != nil {
			return nil, err
		}
		name := "Union"
		if o.All {
			name = "UnionAll"
		}
		return &Physical{Op: o, Name: name, EstRows: left.EstRows + right.EstRows, EstCost: left.EstCost + right.EstCost, Children: []*Physical{left, right}}, nil

	case *HashJoin, *MergeJoin, *NestedLoopJoin:
		return annotateJoin(o, stats)

	case *CallProcedure:
		var children []*Physical
		rows := uint64(1)
		cost := 1.0
		if o.Input != nil {
			in, err := Annotate(o.Input, stats)
			if err != nil {
				return nil, err
			}
			children = []*Physical{in}
			rows = in.EstRows
			cost = in.EstCost
		}
		return &Physical{Op: o, Name: "CallProcedure", EstRows: rows, EstCost: cost, Children: children}, nil

	case *CallSubquery:
		in, err := Annotate(o.Input, stats)
		if err != nil {
			return nil, err
		}
		sub, err := Annotate(o.Subquery, stats)
		if err != nil {
			return nil, err
		}
		return &Physical{Op: o, Name: "CallSubquery", EstRows: in.EstRows * sub.EstRows, EstCost: in.EstCost + sub.EstCost*float64(in.EstRows), Children: []*Physical{in, sub}}, nil

	case *Create:
		return annotateMutation(o, o.Input, "Create", stats)
	case *Merge:
		return annotateMutation(o, o.Input, "Merge", stats)
	case *SetProps:
		return annotateMutation(o, o.Input, "SetProps", stats)
	case *RemoveProps:
		return annotateMutation(o, o.Input, "RemoveProps", stats)
	case *Delete:
		return annotateMutation(o, o.Input, "Delete", stats)

	default:
		return nil, nexuserr.New(nexuserr.KindPlan, nexuserr.CodeUnsupportedPattern, "planner.Annotate", "unrecognized logical operator")
	}
}

func annotateMutation(op Op, input Op, name string, stats Stats) (*Physical, error) {
	if input == nil {
		return &Physical{Op: op, Name: name, EstRows: 1, EstCost: 1}, nil
	}
	in, err := Annotate(input, stats)
	if err != nil {
		return nil, err
	}
	return &Physical{Op: op, Name: name, EstRows: in.EstRows, EstCost: in.EstCost + float64(in.EstRows), Children: []*Physical{in}}, nil
}

// annotateJoin re-derives Left/Right from the already-built logical
// join node (joinOnSharedVars provisionally picks HashJoin/
// NestedLoopJoin; this is where the cost-based choice actually happens)
// and selects the cheaper physical algorithm given estimated
// cardinalities: HashJoin when one side is much smaller (build the hash
// table on it), NestedLoopJoin when both sides are tiny, MergeJoin is
// left available for an executor that chooses to pre-sort both sides.
func annotateJoin(op Op, stats Stats) (*Physical, error) {
	var left, right Op
	var keys []string
	switch j := op.(type) {
	case *HashJoin:
		left, right, keys = j.Left, j.Right, j.Keys
	case *MergeJoin:
		left, right, keys = j.Left, j.Right, j.Keys
	case *NestedLoopJoin:
		left, right = j.Left, j.Right
	}

	leftP, err := Annotate(left, stats)
	if err != nil {
		return nil, err
	}
	rightP, err := Annotate(right, stats)
	if err != nil {
		return nil, err
	}

	name := "NestedLoopJoin"
	cost := leftP.EstCost + rightP.EstCost + float64(leftP.EstRows*rightP.EstRows)
	var chosen Op = &NestedLoopJoin{Left: left, Right: right}

	if len(keys) > 0 {
		hashCost := leftP.EstCost + rightP.EstCost + float64(leftP.EstRows+rightP.EstRows)
		if hashCost < cost || leftP.EstRows > 1000 || rightP.EstRows > 1000 {
			name = "HashJoin"
			cost = hashCost
			chosen = &HashJoin{Left: left, Right: right, Keys: keys}
		}
	}

	rows := leftP.EstRows
	if rightP.EstRows > rows {
		rows = rightP.EstRows
	}
	return &Physical{Op: chosen, Name: name, EstRows: rows, EstCost: cost, Children: []*Physical{leftP, rightP}}, nil
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// logApprox is a cheap integer-log stand-in (sort cost ~ n*log(n))
// that avoids pulling in math.Log for one estimator.
func logApprox(n uint64) float64 {
	if n < 2 {
		return 1
	}
	bits := 0
	for n > 0 {
		n >>= 1
		bits++
	}
	return float64(bits)
}
