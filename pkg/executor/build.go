package executor

import (
	"github.com/nexusdb/nexus/pkg/catalog"
	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/txn"
	"github.com/nexusdb/nexus/pkg/types"
)

// Compiler is the read-only context a query compilation pass threads
// through every operator constructor: the write/read transaction
// operators read and mutate through, the catalog for name interning,
// the expression evaluator's environment, and the procedure registry
// CALL dispatches into.
type Compiler struct {
	txn        *txn.Txn
	cat        *catalog.Catalog
	ec         *evalCtx
	procedures map[string]ProcedureFunc
}

func newCompiler(t *txn.Txn, cat *catalog.Catalog, params map[string]types.Value, procedures map[string]ProcedureFunc) *Compiler {
	return &Compiler{
		txn:        t,
		cat:        cat,
		ec:         &evalCtx{cat: cat, params: params},
		procedures: procedures,
	}
}

// Catalog, Txn and Index are the accessors pkg/procedure's registered
// ProcedureFuncs use to read schema/graph state — Compiler's fields
// stay unexported so only these three narrow entry points are
// reachable from outside pkg/executor.
func (c *Compiler) Catalog() *catalog.Catalog { return c.cat }
func (c *Compiler) Txn() *txn.Txn             { return c.txn }
func (c *Compiler) Index() *index.Manager     { return c.txn.Index() }

// Compile walks an annotated physical plan bottom-up and builds the
// matching Iterator tree, mirroring planner/cost.go's Annotate switch
// structure one-for-one.
func Compile(c *Compiler, phys *planner.Physical) (Iterator, error) {
	return compile(c, phys, false)
}

// CompileProfiled behaves like Compile but wraps every operator's
// Iterator in a profilingIter, so each Next call's row count and
// wall-clock time accumulate into phys's own *planner.Physical node.
// PROFILE reads ActualRows/ElapsedUs back off that tree once the query
// has fully drained.
func CompileProfiled(c *Compiler, phys *planner.Physical) (Iterator, error) {
	return compile(c, phys, true)
}

func compile(c *Compiler, phys *planner.Physical, profile bool) (Iterator, error) {
	var children []Iterator
	for _, ch := range phys.Children {
		it, err := compile(c, ch, profile)
		if err != nil {
			return nil, err
		}
		children = append(children, it)
	}
	child := func(i int) Iterator {
		if i < len(children) {
			return children[i]
		}
		return nil
	}

	it, err := buildNode(c, phys, child)
	if err != nil {
		return nil, err
	}
	if profile {
		it = newProfilingIter(it, phys)
	}
	return it, nil
}

func buildNode(c *Compiler, phys *planner.Physical, child func(int) Iterator) (Iterator, error) {
	switch op := phys.Op.(type) {
	case *planner.AllNodesScan:
		return newAllNodesScan(c, op)
	case *planner.NodeByLabelScan:
		return newNodeByLabelScan(c, op)
	case *planner.IndexSeek:
		return newIndexSeek(c, op)

	case *planner.Expand:
		return newExpand(c, op, child(0))
	case *planner.VarLengthExpand:
		return newVarLengthExpand(c, op, child(0))
	case *planner.ShortestPath:
		return newShortestPath(c, op, child(0), child(1))

	case *planner.Selection:
		return newSelection(c, op, child(0)), nil
	case *planner.Projection:
		return newProjection(c, op, child(0)), nil
	case *planner.Distinct:
		return newDistinct(op, child(0)), nil
	case *planner.Aggregate:
		return newAggregate(c, op, child(0)), nil
	case *planner.Sort:
		return newSort(c, op, child(0)), nil
	case *planner.Skip:
		return newSkip(c, op, child(0)), nil
	case *planner.Limit:
		return newLimit(c, op, child(0)), nil
	case *planner.Optional:
		return newOptional(op, child(0)), nil
	case *planner.Unwind:
		return newUnwind(c, op, child(0)), nil
	case *planner.Union:
		return newUnion(op, child(0), child(1)), nil

	case *planner.HashJoin:
		return newHashJoin(op, child(0), child(1)), nil
	case *planner.MergeJoin:
		return newMergeJoin(op, child(0), child(1)), nil
	case *planner.NestedLoopJoin:
		return newNestedLoopJoin(child(0), child(1)), nil

	case *planner.CallProcedure:
		return newCallProcedure(c, op, child(0))
	case *planner.CallSubquery:
		return newCallSubquery(child(0), child(1)), nil

	case *planner.Create:
		return newCreate(c, op, child(0)), nil
	case *planner.Merge:
		return newMerge(c, op, child(0)), nil
	case *planner.SetProps:
		return newSetProps(c, op, child(0)), nil
	case *planner.RemoveProps:
		return newRemoveProps(c, op, child(0)), nil
	case *planner.Delete:
		return newDelete(c, op, child(0)), nil

	default:
		return nil, errf(nexuserr.CodeUnsupportedPattern, "executor.Compile", "unrecognized physical operator")
	}
}
