package executor

import (
	"context"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/storage"
	"github.com/nexusdb/nexus/pkg/types"
)

// allNodesScanIter pulls node ids from GraphStore.AllNodeIDs once at
// Close-safe construction time and walks them batchSize at a time.
type allNodesScanIter struct {
	store *storage.GraphStore
	ec    *evalCtx
	vr    string
	ids   []types.NodeID
	pos   int
}

func newAllNodesScan(c *Compiler, op *planner.AllNodesScan) (Iterator, error) {
	ids, err := c.txn.Store().AllNodeIDs()
	if err != nil {
		return nil, wrapf(nexuserr.CodeStorageIO, "executor.AllNodesScan", err)
	}
	return &allNodesScanIter{store: c.txn.Store(), ec: c.ec, vr: op.Variable, ids: ids}, nil
}

func (it *allNodesScanIter) Next(ctx context.Context) (*Batch, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if it.pos >= len(it.ids) {
		return nil, nil
	}
	end := it.pos + batchSize
	if end > len(it.ids) {
		end = len(it.ids)
	}
	rows := make([]Row, 0, end-it.pos)
	for _, id := range it.ids[it.pos:end] {
		node, err := it.store.ReadNode(id)
		if err != nil {
			continue // deleted between the id snapshot and the read
		}
		rows = append(rows, Row{it.vr: types.NewNodeValue(node)})
	}
	it.pos = end
	return &Batch{Rows: rows}, nil
}

func (it *allNodesScanIter) Close() error { return nil }

// nodeByLabelScanIter walks a label bitmap's id set.
type nodeByLabelScanIter struct {
	store *storage.GraphStore
	vr    string
	ids   []types.NodeID
	pos   int
}

func newNodeByLabelScan(c *Compiler, op *planner.NodeByLabelScan) (Iterator, error) {
	labelID, ok, err := c.cat.LookupLabel(op.Label)
	if err != nil {
		return nil, wrapf(nexuserr.CodeStorageIO, "executor.NodeByLabelScan", err)
	}
	if !ok {
		return &nodeByLabelScanIter{store: c.txn.Store(), vr: op.Variable}, nil
	}
	ids := c.txn.Index().Labels().Nodes(labelID)
	return &nodeByLabelScanIter{store: c.txn.Store(), vr: op.Variable, ids: ids}, nil
}

func (it *nodeByLabelScanIter) Next(ctx context.Context) (*Batch, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if it.pos >= len(it.ids) {
		return nil, nil
	}
	end := it.pos + batchSize
	if end > len(it.ids) {
		end = len(it.ids)
	}
	rows := make([]Row, 0, end-it.pos)
	for _, id := range it.ids[it.pos:end] {
		node, err := it.store.ReadNode(id)
		if err != nil {
			continue
		}
		rows = append(rows, Row{it.vr: types.NewNodeValue(node)})
	}
	it.pos = end
	return &Batch{Rows: rows}, nil
}

func (it *nodeByLabelScanIter) Close() error { return nil }

// indexSeekIter reads matching ids straight out of a property index
// (equality or range, depending on op.Predicate) instead of scanning
// the label bitmap.
type indexSeekIter struct {
	store *storage.GraphStore
	vr    string
	ids   []uint64
	pos   int
}

func newIndexSeek(c *Compiler, op *planner.IndexSeek) (Iterator, error) {
	labelID, ok, err := c.cat.LookupLabel(op.Label)
	if err != nil || !ok {
		return nil, errf(nexuserr.CodeMissingIndexForHint, "executor.IndexSeek", "label not found: "+op.Label)
	}
	propID, ok, err := c.cat.LookupPropertyKey(op.Property)
	if err != nil || !ok {
		return nil, errf(nexuserr.CodeMissingIndexForHint, "executor.IndexSeek", "property not found: "+op.Property)
	}
	pi, ok := c.txn.Index().PropertyIndexFor(labelID, propID)
	if !ok {
		return nil, errf(nexuserr.CodeMissingIndexForHint, "executor.IndexSeek", "no property index for "+op.Label+"."+op.Property)
	}

	ids, err := seekFromPredicate(c, pi, op.Predicate, op.Property)
	if err != nil {
		return nil, err
	}
	return &indexSeekIter{store: c.txn.Store(), vr: op.Variable, ids: ids}, nil
}

// seekFromPredicate extracts the literal/parameter operand of the
// comparison IndexSeek's predicate performs (e.g. `n.age = 30`,
// `n.age > 30`) and issues the matching property-index lookup. Only a
// single comparison against a constant is seekable this way; anything
// else means planner.Annotate picked IndexSeek for a predicate this
// executor can't yet translate into a seek.
func seekFromPredicate(c *Compiler, pi *index.PropertyIndex, pred ast.Expr, property string) ([]uint64, error) {
	be, ok := pred.(*ast.BinaryExpr)
	if !ok {
		return nil, errf(nexuserr.CodeUnsupportedPattern, "executor.IndexSeek", "predicate not seekable for "+property)
	}
	operand := be.Right
	if _, isProp := be.Left.(*ast.PropertyAccess); !isProp {
		operand = be.Left
	}
	v, err := Eval(c.ec, nil, operand)
	if err != nil {
		return nil, err
	}
	switch be.Op {
	case ast.OpEq:
		return pi.SeekEqual(v)
	case ast.OpGt, ast.OpGte:
		return pi.SeekRange(&v, nil)
	case ast.OpLt, ast.OpLte:
		return pi.SeekRange(nil, &v)
	default:
		return nil, errf(nexuserr.CodeUnsupportedPattern, "executor.IndexSeek", "predicate not seekable for "+property)
	}
}

func (it *indexSeekIter) Next(ctx context.Context) (*Batch, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if it.pos >= len(it.ids) {
		return nil, nil
	}
	end := it.pos + batchSize
	if end > len(it.ids) {
		end = len(it.ids)
	}
	rows := make([]Row, 0, end-it.pos)
	for _, id := range it.ids[it.pos:end] {
		node, err := it.store.ReadNode(types.NodeID(id))
		if err != nil {
			continue
		}
		rows = append(rows, Row{it.vr: types.NewNodeValue(node)})
	}
	it.pos = end
	return &Batch{Rows: rows}, nil
}

func (it *indexSeekIter) Close() error { return nil }
