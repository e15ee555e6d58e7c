package parser

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	q, err := Parse(`MATCH (n:Person) WHERE n.age > 30 RETURN n.name AS name ORDER BY name LIMIT 10`)
	require.NoError(t, err)
	require.Len(t, q.Clauses, 2)

	mc, ok := q.Clauses[0].(*ast.MatchClause)
	require.True(t, ok)
	require.Len(t, mc.Patterns, 1)
	require.Equal(t, "n", mc.Patterns[0].Element.Nodes[0].Variable)
	require.Equal(t, []string{"Person"}, mc.Patterns[0].Element.Nodes[0].Labels)
	require.NotNil(t, mc.Where)

	where, ok := mc.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, ast.OpGt, where.Op)

	rc, ok := q.Clauses[1].(*ast.ReturnClause)
	require.True(t, ok)
	require.Len(t, rc.Items, 1)
	require.Equal(t, "name", rc.Items[0].Alias)
	require.Len(t, rc.OrderBy, 1)
	require.NotNil(t, rc.Limit)
}

func TestParseRelationshipPatternWithHops(t *testing.T) {
	q, err := Parse(`MATCH (a)-[:KNOWS*1..3]->(b) RETURN a, b`)
	require.NoError(t, err)
	mc := q.Clauses[0].(*ast.MatchClause)
	elem := mc.Patterns[0].Element
	require.Len(t, elem.Rels, 1)
	rel := elem.Rels[0]
	require.Equal(t, ast.DirOut, rel.Direction)
	require.Equal(t, []string{"KNOWS"}, rel.Types)
	require.NotNil(t, rel.MinHops)
	require.Equal(t, 1, *rel.MinHops)
	require.NotNil(t, rel.MaxHops)
	require.Equal(t, 3, *rel.MaxHops)
}

func TestParseCreateWithProperties(t *testing.T) {
	q, err := Parse(`CREATE (n:Person {name: "Ada", age: 36})`)
	require.NoError(t, err)
	cc := q.Clauses[0].(*ast.CreateClause)
	node := cc.Patterns[0].Element.Nodes[0]
	require.Equal(t, []string{"Person"}, node.Labels)
	require.NotNil(t, node.Props)
	require.Equal(t, []string{"name", "age"}, node.Props.Keys)
}

func TestParseMergeOnCreateOnMatch(t *testing.T) {
	q, err := Parse(`MERGE (n:Person {id: $id}) ON CREATE SET n.created = true ON MATCH SET n.seen = n.seen + 1`)
	require.NoError(t, err)
	mc := q.Clauses[0].(*ast.MergeClause)
	require.Len(t, mc.OnCreate, 1)
	require.Len(t, mc.OnMatch, 1)
	require.Equal(t, "created", mc.OnCreate[0].Property)
}

func TestParseSetLabelsAndAdditive(t *testing.T) {
	q, err := Parse(`MATCH (n) SET n:Active, n += {score: 10}`)
	require.NoError(t, err)
	sc := q.Clauses[1].(*ast.SetClause)
	require.Len(t, sc.Items, 2)
	require.Equal(t, []string{"Active"}, sc.Items[0].Labels)
	require.True(t, sc.Items[1].Additive)
}

func TestParseDetachDelete(t *testing.T) {
	q, err := Parse(`MATCH (n) DETACH DELETE n`)
	require.NoError(t, err)
	dc := q.Clauses[1].(*ast.DeleteClause)
	require.True(t, dc.Detach)
	require.Len(t, dc.Exprs, 1)
}

func TestParseWithUnwindAndAggregation(t *testing.T) {
	q, err := Parse(`UNWIND [1, 2, 3] AS x WITH x, count(*) AS c RETURN x, c`)
	require.NoError(t, err)
	uc := q.Clauses[0].(*ast.UnwindClause)
	require.Equal(t, "x", uc.As)
	lit, ok := uc.Expr.(*ast.ListLiteral)
	require.True(t, ok)
	require.Len(t, lit.Items, 3)

	wc := q.Clauses[1].(*ast.WithClause)
	require.Len(t, wc.Items, 2)
	call, ok := wc.Items[1].Expr.(*ast.FunctionCall)
	require.True(t, ok)
	require.Equal(t, "count", call.Name)
}

func TestParseUnionAll(t *testing.T) {
	q, err := Parse(`MATCH (n:A) RETURN n.name UNION ALL MATCH (n:B) RETURN n.name`)
	require.NoError(t, err)
	require.NotNil(t, q.Union)
	require.True(t, q.Union.All)
}

func TestParseCallProcedureYield(t *testing.T) {
	q, err := Parse(`CALL db.labels() YIELD label RETURN label`)
	require.NoError(t, err)
	cc := q.Clauses[0].(*ast.CallClause)
	require.Equal(t, "db.labels", cc.Procedure)
	require.Equal(t, []string{"label"}, cc.Yield)
}

func TestParseCaseExpression(t *testing.T) {
	q, err := Parse(`RETURN CASE WHEN n.age < 18 THEN "minor" ELSE "adult" END AS bucket`)
	require.NoError(t, err)
	rc := q.Clauses[0].(*ast.ReturnClause)
	ce, ok := rc.Items[0].Expr.(*ast.CaseExpr)
	require.True(t, ok)
	require.Nil(t, ce.Operand)
	require.Len(t, ce.Whens, 1)
	require.NotNil(t, ce.Else)
}

func TestParseVectorDistanceOrderBy(t *testing.T) {
	q, err := Parse(`MATCH (n:Doc) RETURN n ORDER BY n.embedding <-> $query LIMIT 5`)
	require.NoError(t, err)
	rc := q.Clauses[1].(*ast.ReturnClause)
	bin, ok := rc.OrderBy[0].Expr.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, ast.OpVectorDistance, bin.Op)
}

func TestParseBooleanPrecedence(t *testing.T) {
	q, err := Parse(`MATCH (n) WHERE n.a = 1 AND n.b = 2 OR NOT n.c = 3 RETURN n`)
	require.NoError(t, err)
	mc := q.Clauses[0].(*ast.MatchClause)
	top, ok := mc.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, ast.OpOr, top.Op)
	left, ok := top.Left.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, ast.OpAnd, left.Op)
	right, ok := top.Right.(*ast.UnaryExpr)
	require.True(t, ok)
	require.Equal(t, ast.OpNot, right.Op)
}

func TestParseListIndexAndSlice(t *testing.T) {
	q, err := Parse(`RETURN [1,2,3][0], [1,2,3][1..2]`)
	require.NoError(t, err)
	rc := q.Clauses[0].(*ast.ReturnClause)
	_, ok := rc.Items[0].Expr.(*ast.ListIndex)
	require.True(t, ok)
	_, ok = rc.Items[1].Expr.(*ast.ListSlice)
	require.True(t, ok)
}

func TestParseUsingIndexHint(t *testing.T) {
	q, err := Parse(`MATCH (n:Person) USING INDEX n person_age(age) WHERE n.age = 30 RETURN n`)
	require.NoError(t, err)
	mc := q.Clauses[0].(*ast.MatchClause)
	require.Len(t, mc.Hints, 1)
	require.Equal(t, "INDEX", mc.Hints[0].Kind)
	require.Equal(t, "age", mc.Hints[0].Property)
}

func TestParseErrorReportsPosition(t *testing.T) {
	_, err := Parse(`MATCH (n RETURN n`)
	require.Error(t, err)
	var perr *nexuserr.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 1, perr.Line)
	require.Equal(t, 10, perr.Col)
}
