package executor

import (
	"context"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/planner"
)

type selectionIter struct {
	c     *Compiler
	op    *planner.Selection
	input Iterator
}

func newSelection(c *Compiler, op *planner.Selection, input Iterator) Iterator {
	return &selectionIter{c: c, op: op, input: input}
}

func (it *selectionIter) Next(ctx context.Context) (*Batch, error) {
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
			v, err := Eval(it.c.ec, row, it.op.Predicate)
			if err != nil {
				return nil, err
			}
			if v.Truthy() {
				rows = append(rows, row)
			}
		}
		if len(rows) > 0 {
			return &Batch{Rows: rows}, nil
		}
		// an all-filtered batch still means "keep pulling", not EOF
	}
}

func (it *selectionIter) Close() error { return it.input.Close() }

type projectionIter struct {
	c     *Compiler
	op    *planner.Projection
	input Iterator
}

func newProjection(c *Compiler, op *planner.Projection, input Iterator) Iterator {
	return &projectionIter{c: c, op: op, input: input}
}

func (it *projectionIter) Next(ctx context.Context) (*Batch, error) {
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
	if it.op.Star {
		return b, nil
	}
	rows := make([]Row, 0, len(b.Rows))
	for _, row := range b.Rows {
		out := Row{}
		for i, item := range it.op.Items {
			v, err := Eval(it.c.ec, row, item.Expr)
			if err != nil {
				return nil, err
			}
			name := projItemName(item)
			if name == "" {
				name = columnFallbackName(i)
			}
			out[name] = v
		}
		rows = append(rows, out)
	}
	return &Batch{Rows: rows}, nil
}

func (it *projectionIter) Close() error { return it.input.Close() }

// projItemName mirrors planner's projectionVarName (unexported there):
// an explicit AS alias wins, otherwise a bare variable reference keeps
// its own name, otherwise the column is anonymous.
func projItemName(item ast.ReturnItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if v, ok := item.Expr.(*ast.Variable); ok {
		return v.Name
	}
	return ""
}

func columnFallbackName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "col_" + string(letters[i%len(letters)])
}
