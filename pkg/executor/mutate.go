package executor

import (
	"context"
	"strings"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/types"
)

// resolveProps evaluates a pattern's inline {props} map literal (if
// any) against row and interns every key through the catalog.
func resolveProps(c *Compiler, row Row, m *ast.MapLiteral) (map[types.PropertyKeyID]types.Value, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[types.PropertyKeyID]types.Value, len(m.Keys))
	for i, k := range m.Keys {
		v, err := Eval(c.ec, row, m.Values[i])
		if err != nil {
			return nil, err
		}
		id, err := c.cat.GetOrCreatePropertyKey(k)
		if err != nil {
			return nil, wrapf(nexuserr.CodeStorageIO, "executor.Create", err)
		}
		out[id] = v
	}
	return out, nil
}

func resolveLabels(c *Compiler, names []string) ([]types.LabelID, error) {
	ids := make([]types.LabelID, 0, len(names))
	for _, n := range names {
		id, err := c.cat.GetOrCreateLabel(n)
		if err != nil {
			return nil, wrapf(nexuserr.CodeStorageIO, "executor.Create", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// createPattern walks one PatternPart's alternating node/rel chain,
// creating a node wherever its variable is not already bound in row
// (reusing the bound entity otherwise, so `MATCH (a) CREATE (a)-[:X]->(b)`
// hangs the new relationship off the matched node) and always creating a
// fresh relationship for each hop, per CREATE's semantics.
func createPattern(c *Compiler, row Row, part ast.PatternPart) error {
	nodeIDs := make([]types.NodeID, len(part.Element.Nodes))
	for i, np := range part.Element.Nodes {
		if np.Variable != "" {
			if bound, ok := row[np.Variable]; ok && bound.Kind == types.KindNode {
				nodeIDs[i] = bound.Node.ID
				continue
			}
		}
		labels, err := resolveLabels(c, np.Labels)
		if err != nil {
			return err
		}
		props, err := resolveProps(c, row, np.Props)
		if err != nil {
			return err
		}
		node, err := c.txn.CreateNode(labels, props)
		if err != nil {
			return wrapf(nexuserr.CodeStorageIO, "executor.Create", err)
		}
		if np.Variable != "" {
			row[np.Variable] = types.NewNodeValue(node)
		}
		nodeIDs[i] = node.ID
	}

	for i, rp := range part.Element.Rels {
		src, dst := nodeIDs[i], nodeIDs[i+1]
		if rp.Direction == ast.DirIn {
			src, dst = dst, src
		}
		typeName := "RELATED"
		if len(rp.Types) > 0 {
			typeName = rp.Types[0]
		}
		relType, err := c.cat.GetOrCreateRelType(typeName)
		if err != nil {
			return wrapf(nexuserr.CodeStorageIO, "executor.Create", err)
		}
		props, err := resolveProps(c, row, rp.Props)
		if err != nil {
			return err
		}
		rel, err := c.txn.CreateRelationship(relType, src, dst, props)
		if err != nil {
			return wrapf(nexuserr.CodeStorageIO, "executor.Create", err)
		}
		if rp.Variable != "" {
			row[rp.Variable] = types.NewRelationshipValue(rel)
		}
	}
	return nil
}

// createIter runs CREATE once per Input row (or once, with an empty
// seed row, for a standalone CREATE with no Input).
type createIter struct {
	c      *Compiler
	op     *planner.Create
	input  Iterator
	done   bool
}

func newCreate(c *Compiler, op *planner.Create, input Iterator) *createIter {
	return &createIter{c: c, op: op, input: input}
}

func (it *createIter) Next(ctx context.Context) (*Batch, error) {
	if it.input == nil {
		if it.done {
			return nil, nil
		}
		it.done = true
		row := Row{}
		for _, part := range it.op.Patterns {
			if err := createPattern(it.c, row, part); err != nil {
				return nil, err
			}
		}
		return &Batch{Rows: []Row{row}}, nil
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
	rows := make([]Row, 0, len(b.Rows))
	for _, row := range b.Rows {
		next := row.clone()
		for _, part := range it.op.Patterns {
			if err := createPattern(it.c, next, part); err != nil {
				return nil, err
			}
		}
		rows = append(rows, next)
	}
	return &Batch{Rows: rows}, nil
}

func (it *createIter) Close() error {
	if it.input == nil {
		return nil
	}
	return it.input.Close()
}

// mergeIter runs MERGE once per Input row: if the pattern is a single
// node already matched upstream by a prior MATCH-style lowering it is
// left alone and OnMatch runs; otherwise the whole pattern is created
// fresh and OnCreate runs. Detecting "already matched" relies on the
// pattern's own variable already being bound in the row (the planner
// only reaches here for patterns that weren't resolved by a preceding
// scan), matching the MERGE semantics spec.md §4.6 describes for the
// common single-node/single-edge case.
type mergeIter struct {
	c     *Compiler
	op    *planner.Merge
	input Iterator
}

func newMerge(c *Compiler, op *planner.Merge, input Iterator) *mergeIter {
	return &mergeIter{c: c, op: op, input: input}
}

func (it *mergeIter) Next(ctx context.Context) (*Batch, error) {
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
		next := row.clone()
		matched := it.patternVar() != "" && next[it.patternVar()].Kind == types.KindNode
		if !matched {
			if err := createPattern(it.c, next, it.op.Pattern); err != nil {
				return nil, err
			}
			if err := applySetItems(it.c, next, it.op.OnCreate); err != nil {
				return nil, err
			}
		} else if err := applySetItems(it.c, next, it.op.OnMatch); err != nil {
			return nil, err
		}
		rows = append(rows, next)
	}
	return &Batch{Rows: rows}, nil
}

func (it *mergeIter) patternVar() string {
	if len(it.op.Pattern.Element.Nodes) == 0 {
		return ""
	}
	return it.op.Pattern.Element.Nodes[0].Variable
}

func (it *mergeIter) Close() error { return it.input.Close() }

// applySetItems is SET's per-row mutation logic, shared by MERGE's
// ON CREATE/ON MATCH and by the standalone SetProps operator.
func applySetItems(c *Compiler, row Row, items []ast.SetItem) error {
	for _, item := range items {
		bound, ok := row[item.Variable]
		if !ok {
			continue
		}
		switch {
		case len(item.Labels) > 0:
			if bound.Kind != types.KindNode {
				continue
			}
			add, err := resolveLabels(c, item.Labels)
			if err != nil {
				return err
			}
			labels := append([]types.LabelID{}, bound.Node.Labels...)
			for _, l := range add {
				if !bound.Node.HasLabel(l) {
					labels = append(labels, l)
				}
			}
			if err := c.txn.SetNodeLabels(bound.Node.ID, labels); err != nil {
				return wrapf(nexuserr.CodeStorageIO, "executor.Set", err)
			}
			bound.Node.Labels = labels
			row[item.Variable] = bound

		case item.Property != "":
			v, err := Eval(c.ec, row, item.Value)
			if err != nil {
				return err
			}
			if err := setSingleProperty(c, row, bound, item.Variable, item.Property, v); err != nil {
				return err
			}

		default:
			v, err := Eval(c.ec, row, item.Value)
			if err != nil {
				return err
			}
			if v.Kind != types.KindMap {
				return errf(nexuserr.CodeTypeMismatch, "executor.Set", "SET "+item.Variable+" = ... requires a map")
			}
			if err := setWholeEntity(c, row, bound, item.Variable, v.Map, item.Additive); err != nil {
				return err
			}
		}
	}
	return nil
}

func setSingleProperty(c *Compiler, row Row, bound types.Value, varName, prop string, v types.Value) error {
	propID, err := c.cat.GetOrCreatePropertyKey(prop)
	if err != nil {
		return wrapf(nexuserr.CodeStorageIO, "executor.Set", err)
	}
	switch bound.Kind {
	case types.KindNode:
		props := copyProps(bound.Node.Properties)
		props[propID] = v
		if err := c.txn.SetNodeProperties(bound.Node.ID, props); err != nil {
			return wrapf(nexuserr.CodeStorageIO, "executor.Set", err)
		}
		bound.Node.Properties = props
		row[varName] = bound
	case types.KindRelationship:
		return errf(nexuserr.CodeUnsupportedPattern, "executor.Set", "relationship property SET is not yet supported")
	}
	return nil
}

func setWholeEntity(c *Compiler, row Row, bound types.Value, varName string, m map[string]types.Value, additive bool) error {
	if bound.Kind != types.KindNode {
		return nil
	}
	props := map[types.PropertyKeyID]types.Value{}
	if additive {
		props = copyProps(bound.Node.Properties)
	}
	for k, v := range m {
		id, err := c.cat.GetOrCreatePropertyKey(k)
		if err != nil {
			return wrapf(nexuserr.CodeStorageIO, "executor.Set", err)
		}
		props[id] = v
	}
	if err := c.txn.SetNodeProperties(bound.Node.ID, props); err != nil {
		return wrapf(nexuserr.CodeStorageIO, "executor.Set", err)
	}
	bound.Node.Properties = props
	row[varName] = bound
	return nil
}

func copyProps(src map[types.PropertyKeyID]types.Value) map[types.PropertyKeyID]types.Value {
	out := make(map[types.PropertyKeyID]types.Value, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

type setPropsIter struct {
	c     *Compiler
	op    *planner.SetProps
	input Iterator
}

func newSetProps(c *Compiler, op *planner.SetProps, input Iterator) *setPropsIter {
	return &setPropsIter{c: c, op: op, input: input}
}

func (it *setPropsIter) Next(ctx context.Context) (*Batch, error) {
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
	for _, row := range b.Rows {
		if err := applySetItems(it.c, row, it.op.Items); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (it *setPropsIter) Close() error { return it.input.Close() }

type removePropsIter struct {
	c     *Compiler
	op    *planner.RemoveProps
	input Iterator
}

func newRemoveProps(c *Compiler, op *planner.RemoveProps, input Iterator) *removePropsIter {
	return &removePropsIter{c: c, op: op, input: input}
}

func (it *removePropsIter) Next(ctx context.Context) (*Batch, error) {
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
	for _, row := range b.Rows {
		for _, item := range it.op.Items {
			bound, ok := row[item.Variable]
			if !ok || bound.Kind != types.KindNode {
				continue
			}
			if item.Label != "" {
				id, ok, err := it.c.cat.LookupLabel(item.Label)
				if err != nil {
					return nil, wrapf(nexuserr.CodeStorageIO, "executor.Remove", err)
				}
				if !ok {
					continue
				}
				labels := make([]types.LabelID, 0, len(bound.Node.Labels))
				for _, l := range bound.Node.Labels {
					if l != id {
						labels = append(labels, l)
					}
				}
				if err := it.c.txn.SetNodeLabels(bound.Node.ID, labels); err != nil {
					return nil, wrapf(nexuserr.CodeStorageIO, "executor.Remove", err)
				}
				bound.Node.Labels = labels
				row[item.Variable] = bound
				continue
			}
			if item.Property != "" {
				propID, ok, err := it.c.cat.LookupPropertyKey(item.Property)
				if err != nil {
					return nil, wrapf(nexuserr.CodeStorageIO, "executor.Remove", err)
				}
				if !ok {
					continue
				}
				props := copyProps(bound.Node.Properties)
				delete(props, propID)
				if err := it.c.txn.SetNodeProperties(bound.Node.ID, props); err != nil {
					return nil, wrapf(nexuserr.CodeStorageIO, "executor.Remove", err)
				}
				bound.Node.Properties = props
				row[item.Variable] = bound
			}
		}
	}
	return b, nil
}

func (it *removePropsIter) Close() error { return it.input.Close() }

// deleteIter implements DELETE/DETACH DELETE: Detach=false leaves a
// node with remaining relationships as an error (mirrors the
// CodeUnsupportedPattern path below rather than silently orphaning
// edges); Detach=true removes a node's relationships first.
type deleteIter struct {
	c     *Compiler
	op    *planner.Delete
	input Iterator
}

func newDelete(c *Compiler, op *planner.Delete, input Iterator) *deleteIter {
	return &deleteIter{c: c, op: op, input: input}
}

func (it *deleteIter) Next(ctx context.Context) (*Batch, error) {
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
	for _, row := range b.Rows {
		for _, expr := range it.op.Exprs {
			v, err := Eval(it.c.ec, row, expr)
			if err != nil {
				return nil, err
			}
			if err := it.deleteValue(v); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (it *deleteIter) deleteValue(v types.Value) error {
	store := it.c.txn.Store()
	switch v.Kind {
	case types.KindRelationship:
		if it.c.txn.IsRelationshipDeleted(v.Rel.ID) {
			return nil
		}
		return it.c.txn.DeleteRelationship(v.Rel.ID)
	case types.KindNode:
		if it.c.txn.IsNodeDeleted(v.Node.ID) {
			return nil
		}
		if it.op.Detach {
			view, err := store.NodeAdjacencyHeads(v.Node.ID)
			if err != nil {
				return wrapf(nexuserr.CodeStorageIO, "executor.Delete", err)
			}
			relIDs, err := store.RelationshipsFrom(view, types.DirBoth)
			if err != nil {
				return wrapf(nexuserr.CodeStorageIO, "executor.Delete", err)
			}
			for _, rid := range relIDs {
				if it.c.txn.IsRelationshipDeleted(rid) {
					continue
				}
				if err := it.c.txn.DeleteRelationship(rid); err != nil {
					return wrapf(nexuserr.CodeStorageIO, "executor.Delete", err)
				}
			}
		}
		if err := it.c.txn.DeleteNode(v.Node.ID); err != nil {
			if strings.Contains(err.Error(), "relationship") {
				return errf(nexuserr.CodeUnsupportedPattern, "executor.Delete", "node still has relationships; use DETACH DELETE")
			}
			return wrapf(nexuserr.CodeStorageIO, "executor.Delete", err)
		}
	case types.KindPath:
		for i := range v.PathVal.Rels {
			if err := it.deleteValue(types.NewRelationshipValue(&v.PathVal.Rels[i])); err != nil {
				return err
			}
		}
		for i := range v.PathVal.Nodes {
			if err := it.deleteValue(types.NewNodeValue(&v.PathVal.Nodes[i])); err != nil {
				return err
			}
		}
	}
	return nil
}

func (it *deleteIter) Close() error { return it.input.Close() }
