package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
)

// Fingerprint hashes a normalized form of query (literals and
// parameters blanked out, so `WHERE n.age = 30` and `WHERE n.age = 31`
// share a plan) together with the current schema version, per spec.md
// §4.6's "hash of (normalized AST with literals replaced by
// placeholders + schema version)".
func Fingerprint(q *ast.Query, schemaVersion uint64) string {
	var sb strings.Builder
	writeQuery(&sb, q)
	fmt.Fprintf(&sb, "|schema=%d", schemaVersion)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func writeQuery(sb *strings.Builder, q *ast.Query) {
	if q.UseDatabase != "" {
		sb.WriteString("USE ")
		sb.WriteString(q.UseDatabase)
		sb.WriteString(";")
	}
	if q.Explain {
		sb.WriteString("EXPLAIN;")
	}
	if q.Profile {
		sb.WriteString("PROFILE;")
	}
	for _, c := range q.Clauses {
		writeClause(sb, c)
	}
	if q.Union != nil {
		if q.Union.All {
			sb.WriteString("UNION ALL;")
		} else {
			sb.WriteString("UNION;")
		}
		writeQuery(sb, q.Union.Query)
	}
}

func writeClause(sb *strings.Builder, c ast.Clause) {
	switch v := c.(type) {
	case *ast.MatchClause:
		sb.WriteString("MATCH[")
		if v.Optional {
			sb.WriteString("opt,")
		}
		for _, p := range v.Patterns {
			writePatternPart(sb, p)
		}
		if v.Where != nil {
			sb.WriteString("WHERE(")
			writeExpr(sb, v.Where)
			sb.WriteString(")")
		}
		sb.WriteString("]")
	case *ast.WithClause:
		sb.WriteString("WITH[")
		writeReturnItems(sb, v.Star, v.Items)
		if v.Where != nil {
			sb.WriteString("WHERE(")
			writeExpr(sb, v.Where)
			sb.WriteString(")")
		}
		sb.WriteString("]")
	case *ast.ReturnClause:
		sb.WriteString("RETURN[")
		if v.Distinct {
			sb.WriteString("distinct,")
		}
		writeReturnItems(sb, v.Star, v.Items)
		sb.WriteString("]")
	case *ast.UnwindClause:
		sb.WriteString("UNWIND[")
		writeExpr(sb, v.Expr)
		sb.WriteString(" AS ")
		sb.WriteString(v.As)
		sb.WriteString("]")
	case *ast.CreateClause:
		sb.WriteString("CREATE[")
		for _, p := range v.Patterns {
			writePatternPart(sb, p)
		}
		sb.WriteString("]")
	case *ast.MergeClause:
		sb.WriteString("MERGE[")
		writePatternPart(sb, v.Pattern)
		sb.WriteString("]")
	case *ast.SetClause:
		sb.WriteString("SET[]")
	case *ast.RemoveClause:
		sb.WriteString("REMOVE[]")
	case *ast.DeleteClause:
		sb.WriteString("DELETE[")
		if v.Detach {
			sb.WriteString("detach")
		}
		sb.WriteString("]")
	case *ast.CallClause:
		sb.WriteString("CALL[")
		sb.WriteString(v.Procedure)
		sb.WriteString("]")
	}
}

func writePatternPart(sb *strings.Builder, p ast.PatternPart) {
	for _, n := range p.Element.Nodes {
		sb.WriteString("(")
		sb.WriteString(strings.Join(n.Labels, ":"))
		sb.WriteString(")")
	}
	for _, r := range p.Element.Rels {
		sb.WriteString("-[")
		sb.WriteString(strings.Join(r.Types, "|"))
		sb.WriteString("]-")
	}
}

func writeReturnItems(sb *strings.Builder, star bool, items []ast.ReturnItem) {
	if star {
		sb.WriteString("*")
		return
	}
	for _, item := range items {
		writeExpr(sb, item.Expr)
		sb.WriteString(",")
	}
}

// writeExpr renders an expression's shape, blanking out every literal
// and parameter value so queries differing only by bound constants
// fingerprint identically.
func writeExpr(sb *strings.Builder, e ast.Expr) {
	switch v := e.(type) {
	case *ast.Literal:
		sb.WriteString("?")
	case *ast.Parameter:
		sb.WriteString("?")
	case *ast.Variable:
		sb.WriteString(v.Name)
	case *ast.PropertyAccess:
		writeExpr(sb, v.Target)
		sb.WriteString(".")
		sb.WriteString(v.Property)
	case *ast.LabelCheck:
		writeExpr(sb, v.Target)
		sb.WriteString(":")
		sb.WriteString(v.Label)
	case *ast.BinaryExpr:
		writeExpr(sb, v.Left)
		sb.WriteString(string(v.Op))
		writeExpr(sb, v.Right)
	case *ast.UnaryExpr:
		sb.WriteString(string(v.Op))
		writeExpr(sb, v.Operand)
	case *ast.FunctionCall:
		sb.WriteString(v.Name)
		sb.WriteString("(")
		if v.Distinct {
			sb.WriteString("distinct,")
		}
		for _, a := range v.Args {
			writeExpr(sb, a)
			sb.WriteString(",")
		}
		sb.WriteString(")")
	case *ast.ListLiteral:
		sb.WriteString("[")
		for _, item := range v.Items {
			writeExpr(sb, item)
			sb.WriteString(",")
		}
		sb.WriteString("]")
	case *ast.MapLiteral:
		sb.WriteString("{")
		for i, k := range v.Keys {
			sb.WriteString(k)
			sb.WriteString(":")
			writeExpr(sb, v.Values[i])
			sb.WriteString(",")
		}
		sb.WriteString("}")
	case *ast.CaseExpr:
		sb.WriteString("CASE")
		if v.Operand != nil {
			writeExpr(sb, v.Operand)
		}
		for _, branch := range v.Whens {
			sb.WriteString("WHEN")
			writeExpr(sb, branch.When)
			sb.WriteString("THEN")
			writeExpr(sb, branch.Then)
		}
		if v.Else != nil {
			sb.WriteString("ELSE")
			writeExpr(sb, v.Else)
		}
	case *ast.ListIndex:
		writeExpr(sb, v.Target)
		sb.WriteString("[?]")
	case *ast.ListSlice:
		writeExpr(sb, v.Target)
		sb.WriteString("[?..?]")
	}
}
