package executor

import (
	"context"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/types"
)

func toStoreDirection(d planner.ExpandDir) types.Direction {
	switch d {
	case planner.ExpandOut:
		return types.DirOutgoing
	case planner.ExpandIn:
		return types.DirIncoming
	default:
		return types.DirBoth
	}
}

// expandIter is a nested-loop hop: for every row pulled from Input it
// walks FromVar's adjacency list in Direction, emitting one output row
// per (optionally type-filtered) relationship found.
type expandIter struct {
	c     *Compiler
	op    *planner.Expand
	input Iterator

	cur     []Row
	curPos  int
	relIDs  []types.RelID
	typeIDs map[types.RelTypeID]bool
}

func newExpand(c *Compiler, op *planner.Expand, input Iterator) (Iterator, error) {
	it := &expandIter{c: c, op: op, input: input}
	if len(op.Types) > 0 {
		it.typeIDs = map[types.RelTypeID]bool{}
		for _, t := range op.Types {
			id, ok, err := c.cat.LookupRelType(t)
			if err != nil {
				return nil, wrapf(nexuserr.CodeStorageIO, "executor.Expand", err)
			}
			if ok {
				it.typeIDs[id] = true
			}
		}
	}
	return it, nil
}

func (it *expandIter) Next(ctx context.Context) (*Batch, error) {
	rows := make([]Row, 0, batchSize)
	for len(rows) < batchSize {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		if it.curPos >= len(it.cur) {
			b, err := it.input.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			it.cur = b.Rows
			it.curPos = 0
			continue
		}
		row := it.cur[it.curPos]
		it.curPos++

		from := row[it.op.FromVar]
		if from.Kind != types.KindNode {
			continue
		}
		expanded, err := it.expandFrom(row, from.Node.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, expanded...)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &Batch{Rows: rows}, nil
}

func (it *expandIter) expandFrom(row Row, from types.NodeID) ([]Row, error) {
	store := it.c.txn.Store()
	view, err := store.NodeAdjacencyHeads(from)
	if err != nil {
		return nil, wrapf(nexuserr.CodeStorageIO, "executor.Expand", err)
	}
	relIDs, err := store.RelationshipsFrom(view, toStoreDirection(it.op.Direction))
	if err != nil {
		return nil, wrapf(nexuserr.CodeStorageIO, "executor.Expand", err)
	}

	var out []Row
	for _, rid := range relIDs {
		rel, err := store.ReadRelationship(rid)
		if err != nil {
			continue
		}
		if it.typeIDs != nil && !it.typeIDs[rel.Type] {
			continue
		}
		other := rel.OtherEnd(from)
		toNode, err := store.ReadNode(other)
		if err != nil {
			continue
		}
		next := row.clone()
		if it.op.RelVar != "" {
			next[it.op.RelVar] = types.NewRelationshipValue(rel)
		}
		if it.op.ToVar != "" {
			next[it.op.ToVar] = types.NewNodeValue(toNode)
		}
		out = append(out, next)
	}
	return out, nil
}

func (it *expandIter) Close() error { return it.input.Close() }

// varLengthExpandIter does bounded-depth DFS from FromVar, emitting one
// row per distinct path of length in [MinHops, MaxHops] with
// NO_REPEAT_RELS uniqueness (spec.md §4.7 default): a relationship may
// not be reused within the same path.
type varLengthExpandIter struct {
	c      *Compiler
	op     *planner.VarLengthExpand
	input  Iterator
	cur    []Row
	curPos int
	queue  []Row
}

func newVarLengthExpand(c *Compiler, op *planner.VarLengthExpand, input Iterator) (Iterator, error) {
	return &varLengthExpandIter{c: c, op: op, input: input}, nil
}

func (it *varLengthExpandIter) Next(ctx context.Context) (*Batch, error) {
	for len(it.queue) < batchSize {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		if it.curPos >= len(it.cur) {
			b, err := it.input.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			it.cur = b.Rows
			it.curPos = 0
			continue
		}
		row := it.cur[it.curPos]
		it.curPos++
		from := row[it.op.FromVar]
		if from.Kind != types.KindNode {
			continue
		}
		max := it.op.MaxHops
		if max == 0 {
			max = 15 // fixed cap for unbounded patterns; config.Config.MaxExpandDepth is not read here
		}
		results, err := it.walk(row, from.Node.ID, nil, max)
		if err != nil {
			return nil, err
		}
		it.queue = append(it.queue, results...)
	}
	if len(it.queue) == 0 {
		return nil, nil
	}
	end := batchSize
	if end > len(it.queue) {
		end = len(it.queue)
	}
	out := it.queue[:end]
	it.queue = it.queue[end:]
	return &Batch{Rows: out}, nil
}

func (it *varLengthExpandIter) walk(row Row, from types.NodeID, usedRels map[types.RelID]bool, remaining int) ([]Row, error) {
	store := it.c.txn.Store()
	var out []Row
	depth := 0
	if usedRels != nil {
		depth = len(usedRels)
	}

	if remaining <= 0 {
		return out, nil
	}

	view, err := store.NodeAdjacencyHeads(from)
	if err != nil {
		return nil, wrapf(nexuserr.CodeStorageIO, "executor.VarLengthExpand", err)
	}
	relIDs, err := store.RelationshipsFrom(view, toStoreDirection(it.op.Direction))
	if err != nil {
		return nil, wrapf(nexuserr.CodeStorageIO, "executor.VarLengthExpand", err)
	}

	for _, rid := range relIDs {
		if usedRels != nil && usedRels[rid] {
			continue
		}
		rel, err := store.ReadRelationship(rid)
		if err != nil {
			continue
		}
		if len(it.op.Types) > 0 {
			match := false
			for _, t := range it.op.Types {
				id, ok, _ := it.c.cat.LookupRelType(t)
				if ok && id == rel.Type {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		other := rel.OtherEnd(from)
		toNode, err := store.ReadNode(other)
		if err != nil {
			continue
		}

		nextUsed := map[types.RelID]bool{rid: true}
		for k := range usedRels {
			nextUsed[k] = true
		}
		nextDepth := depth + 1

		if nextDepth >= it.op.MinHops {
			next := row.clone()
			if it.op.ToVar != "" {
				next[it.op.ToVar] = types.NewNodeValue(toNode)
			}
			out = append(out, next)
		}
		if nextDepth < it.op.MaxHops || it.op.MaxHops == 0 {
			deeper, err := it.walk(row, other, nextUsed, remaining-1)
			if err != nil {
				return nil, err
			}
			out = append(out, deeper...)
		}
	}
	return out, nil
}

func (it *varLengthExpandIter) Close() error { return it.input.Close() }

// shortestPathIter runs BFS between every (from,to) pair produced by
// Left×Right, per spec.md §4.7's ShortestPath operator.
type shortestPathIter struct {
	c      *Compiler
	op     *planner.ShortestPath
	left   Iterator
	right  Iterator
	leftRows  []Row
	rightRows []Row
	done      bool
}

func newShortestPath(c *Compiler, op *planner.ShortestPath, left, right Iterator) (Iterator, error) {
	return &shortestPathIter{c: c, op: op, left: left, right: right}, nil
}

func (it *shortestPathIter) Next(ctx context.Context) (*Batch, error) {
	if it.leftRows == nil {
		for {
			b, err := it.left.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			it.leftRows = append(it.leftRows, b.Rows...)
		}
		for {
			b, err := it.right.Next(ctx)
			if err != nil {
				return nil, err
			}
			if b == nil {
				break
			}
			it.rightRows = append(it.rightRows, b.Rows...)
		}
	}
	if it.done {
		return nil, nil
	}
	it.done = true

	var out []Row
	for _, lr := range it.leftRows {
		fromV := lr[it.op.FromVar]
		if fromV.Kind != types.KindNode {
			continue
		}
		for _, rr := range it.rightRows {
			if err := checkCancelled(ctx); err != nil {
				return nil, err
			}
			toV := rr[it.op.ToVar]
			if toV.Kind != types.KindNode {
				continue
			}
			path, err := it.bfs(fromV.Node.ID, toV.Node.ID)
			if err != nil {
				return nil, err
			}
			if path == nil {
				continue
			}
			merged := lr.clone()
			for k, v := range rr {
				merged[k] = v
			}
			if it.op.PathVar != "" {
				merged[it.op.PathVar] = types.NewPathValue(path)
			}
			out = append(out, merged)
		}
	}
	return &Batch{Rows: out}, nil
}

type bfsFrame struct {
	node types.NodeID
}

// relTypeAllowed reports whether a relationship of type t may be
// traversed: any type when op.RelTypes is empty, else one of them.
func (it *shortestPathIter) relTypeAllowed(t types.RelTypeID) bool {
	if len(it.op.RelTypes) == 0 {
		return true
	}
	for _, name := range it.op.RelTypes {
		id, ok, err := it.c.cat.LookupRelType(name)
		if err == nil && ok && id == t {
			return true
		}
	}
	return false
}

// bfs does unweighted single-source shortest path over
// storage.GraphStore's adjacency list — sufficient for the bounded
// fan-out graphs spec.md targets; a weighted/heuristic variant (true
// Dijkstra/A*) is future work (see DESIGN.md Open Question decisions).
func (it *shortestPathIter) bfs(from, to types.NodeID) (*types.Path, error) {
	if from == to {
		node, err := it.c.txn.Store().ReadNode(from)
		if err != nil {
			return nil, nil
		}
		return &types.Path{Nodes: []types.Node{*node}}, nil
	}
	store := it.c.txn.Store()
	visited := map[types.NodeID]bool{from: true}
	queue := []bfsFrame{{node: from}}
	parent := map[types.NodeID]types.RelID{}
	parentNode := map[types.NodeID]types.NodeID{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		view, err := store.NodeAdjacencyHeads(cur.node)
		if err != nil {
			continue
		}
		relIDs, err := store.RelationshipsFrom(view, types.DirBoth)
		if err != nil {
			continue
		}
		for _, rid := range relIDs {
			rel, err := store.ReadRelationship(rid)
			if err != nil {
				continue
			}
			if !it.relTypeAllowed(rel.Type) {
				continue
			}
			other := rel.OtherEnd(cur.node)
			if visited[other] {
				continue
			}
			visited[other] = true
			parent[other] = rid
			parentNode[other] = cur.node
			if other == to {
				return it.reconstruct(from, to, parent, parentNode)
			}
			queue = append(queue, bfsFrame{node: other})
		}
	}
	return nil, nil
}

func (it *shortestPathIter) reconstruct(from, to types.NodeID, parent map[types.NodeID]types.RelID, parentNode map[types.NodeID]types.NodeID) (*types.Path, error) {
	store := it.c.txn.Store()
	var nodeIDs []types.NodeID
	var relIDs []types.RelID
	cur := to
	for cur != from {
		nodeIDs = append([]types.NodeID{cur}, nodeIDs...)
		relIDs = append([]types.RelID{parent[cur]}, relIDs...)
		cur = parentNode[cur]
	}
	nodeIDs = append([]types.NodeID{from}, nodeIDs...)

	path := &types.Path{}
	for _, id := range nodeIDs {
		n, err := store.ReadNode(id)
		if err != nil {
			return nil, wrapf(nexuserr.CodeStorageIO, "executor.ShortestPath", err)
		}
		path.Nodes = append(path.Nodes, *n)
	}
	for _, id := range relIDs {
		r, err := store.ReadRelationship(id)
		if err != nil {
			return nil, wrapf(nexuserr.CodeStorageIO, "executor.ShortestPath", err)
		}
		path.Rels = append(path.Rels, *r)
	}
	return path, nil
}

func (it *shortestPathIter) Close() error {
	err1 := it.left.Close()
	err2 := it.right.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
