// Package parser is a hand-written recursive-descent (Pratt for
// expressions) parser building an ast.Query from pkg/cypher/lexer's
// token stream, per spec.md §4.5. Real Cypher-family engines — and the
// pack's own SQL/DSL parsers — hand-roll this layer rather than reach
// for a parser-combinator library; see DESIGN.md for why.
package parser

import (
	"strconv"
	"strings"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/cypher/lexer"
	"github.com/nexusdb/nexus/pkg/nexuserr"
)

// Parse lexes and parses src into an ast.Query.
func Parse(src string) (*ast.Query, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != lexer.EOF {
		return nil, p.errf("unexpected '" + p.peek().Text + "'")
	}
	return q, nil
}

type parser struct {
	toks []lexer.Token
	pos  int
}

func (p *parser) peek() lexer.Token { return p.toks[p.pos] }

func (p *parser) peekAt(offset int) lexer.Token {
	i := p.pos + offset
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errf(msg string) error {
	t := p.peek()
	return nexuserr.Parse("parser.Parse", msg, t.Line, t.Col)
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.Kind == lexer.Keyword && t.Text == kw
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return (t.Kind == lexer.Punct || t.Kind == lexer.Operator) && t.Text == s
}

func (p *parser) expectKeyword(kw string) (lexer.Token, error) {
	if !p.isKeyword(kw) {
		return lexer.Token{}, p.errf("expected keyword " + kw)
	}
	return p.advance(), nil
}

func (p *parser) expectPunct(s string) (lexer.Token, error) {
	if !p.isPunct(s) {
		return lexer.Token{}, p.errf("expected '" + s + "'")
	}
	return p.advance(), nil
}

func (p *parser) expectIdent() (string, error) {
	if p.peek().Kind != lexer.Ident {
		return "", p.errf("expected identifier")
	}
	return p.advance().Text, nil
}

// parseQuery parses one full statement, including an optional USE
// DATABASE prefix, EXPLAIN/PROFILE wrapper, the clause sequence, and
// any trailing UNION[ALL] continuations.
func (p *parser) parseQuery() (*ast.Query, error) {
	q := &ast.Query{}

	if p.isKeyword("USE") {
		p.advance()
		if p.isKeyword("DATABASE") {
			p.advance()
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		q.UseDatabase = name
	}

	if p.isKeyword("EXPLAIN") {
		p.advance()
		q.Explain = true
	} else if p.isKeyword("PROFILE") {
		p.advance()
		q.Profile = true
	}

	for {
		if p.peek().Kind == lexer.EOF || p.isKeyword("UNION") || p.isPunct("}") {
			break
		}
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}

	if p.isKeyword("UNION") {
		p.advance()
		all := false
		if p.isKeyword("ALL") {
			p.advance()
			all = true
		}
		next, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		q.Union = &ast.UnionedQuery{All: all, Query: next}
	}

	return q, nil
}

func (p *parser) parseClause() (ast.Clause, error) {
	t := p.peek()
	if t.Kind != lexer.Keyword {
		return nil, p.errf("expected clause keyword")
	}
	switch t.Text {
	case "OPTIONAL":
		p.advance()
		if _, err := p.expectKeyword("MATCH"); err != nil {
			return nil, err
		}
		return p.parseMatch(true)
	case "MATCH":
		p.advance()
		return p.parseMatch(false)
	case "WITH":
		p.advance()
		return p.parseWith()
	case "UNWIND":
		p.advance()
		return p.parseUnwind()
	case "CREATE":
		p.advance()
		return p.parseCreate()
	case "MERGE":
		p.advance()
		return p.parseMerge()
	case "SET":
		p.advance()
		return p.parseSet()
	case "REMOVE":
		p.advance()
		return p.parseRemove()
	case "DELETE":
		p.advance()
		return p.parseDelete(false)
	case "DETACH":
		p.advance()
		if _, err := p.expectKeyword("DELETE"); err != nil {
			return nil, err
		}
		return p.parseDelete(true)
	case "RETURN":
		p.advance()
		return p.parseReturn()
	case "CALL":
		p.advance()
		return p.parseCall()
	default:
		return nil, p.errf("unexpected clause keyword " + t.Text)
	}
}

// ---- patterns ----

func (p *parser) parseMatch(optional bool) (*ast.MatchClause, error) {
	mc := &ast.MatchClause{Optional: optional}
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		mc.Patterns = append(mc.Patterns, part)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	for p.isKeyword("USING") {
		p.advance()
		hint, err := p.parseHint()
		if err != nil {
			return nil, err
		}
		mc.Hints = append(mc.Hints, hint)
	}
	if p.isKeyword("WHERE") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		mc.Where = expr
	}
	return mc, nil
}

func (p *parser) parseHint() (ast.IndexHint, error) {
	if p.isKeyword("INDEX") {
		p.advance()
		v, err := p.expectIdent()
		if err != nil {
			return ast.IndexHint{}, err
		}
		label, err := p.expectIdent()
		if err != nil {
			return ast.IndexHint{}, err
		}
		if _, err := p.expectPunct("("); err != nil {
			return ast.IndexHint{}, err
		}
		prop, err := p.expectIdent()
		if err != nil {
			return ast.IndexHint{}, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return ast.IndexHint{}, err
		}
		return ast.IndexHint{Kind: "INDEX", Variable: v, Label: label, Property: prop}, nil
	}
	if p.isKeyword("SCAN") {
		p.advance()
		v, err := p.expectIdent()
		if err != nil {
			return ast.IndexHint{}, err
		}
		label, err := p.expectIdent()
		if err != nil {
			return ast.IndexHint{}, err
		}
		return ast.IndexHint{Kind: "SCAN", Variable: v, Label: label}, nil
	}
	if p.isKeyword("JOIN") {
		p.advance()
		if p.isKeyword("ON") {
			p.advance()
		}
		v, err := p.expectIdent()
		if err != nil {
			return ast.IndexHint{}, err
		}
		return ast.IndexHint{Kind: "JOIN", Variable: v}, nil
	}
	return ast.IndexHint{}, p.errf("expected INDEX, SCAN or JOIN after USING")
}

func (p *parser) parsePatternPart() (ast.PatternPart, error) {
	var part ast.PatternPart
	if p.peek().Kind == lexer.Ident && p.peekAt(1).Kind == lexer.Operator && p.peekAt(1).Text == "=" {
		part.Variable = p.advance().Text
		p.advance() // '='
	}
	elem, err := p.parsePatternElement()
	if err != nil {
		return part, err
	}
	part.Element = elem
	return part, nil
}

func (p *parser) parsePatternElement() (ast.PatternElement, error) {
	var elem ast.PatternElement
	node, err := p.parseNodePattern()
	if err != nil {
		return elem, err
	}
	elem.Nodes = append(elem.Nodes, node)
	for p.isPunct("-") || p.isOperatorText("<-") {
		rel, err := p.parseRelPattern()
		if err != nil {
			return elem, err
		}
		elem.Rels = append(elem.Rels, rel)
		node, err := p.parseNodePattern()
		if err != nil {
			return elem, err
		}
		elem.Nodes = append(elem.Nodes, node)
	}
	return elem, nil
}

func (p *parser) isOperatorText(s string) bool {
	t := p.peek()
	return t.Kind == lexer.Operator && t.Text == s
}

func (p *parser) parseNodePattern() (ast.NodePattern, error) {
	var n ast.NodePattern
	if _, err := p.expectPunct("("); err != nil {
		return n, err
	}
	if p.peek().Kind == lexer.Ident {
		n.Variable = p.advance().Text
	}
	for p.isPunct(":") {
		p.advance()
		label, err := p.expectIdent()
		if err != nil {
			return n, err
		}
		n.Labels = append(n.Labels, label)
	}
	if p.isPunct("{") {
		m, err := p.parseMapLiteral()
		if err != nil {
			return n, err
		}
		n.Props = m
	}
	if _, err := p.expectPunct(")"); err != nil {
		return n, err
	}
	return n, nil
}

// parseRelPattern consumes one `-[...]-`/`<-[...]-`/`-[...]->` segment,
// including the dashes on either side of the optional bracketed detail.
func (p *parser) parseRelPattern() (ast.RelPattern, error) {
	var r ast.RelPattern
	leftArrow := false
	if p.isOperatorText("<-") {
		p.advance()
		leftArrow = true
	} else {
		if _, err := p.expectPunct("-"); err != nil {
			return r, err
		}
	}

	if p.isPunct("[") {
		p.advance()
		if p.peek().Kind == lexer.Ident {
			r.Variable = p.advance().Text
		}
		for p.isPunct(":") {
			p.advance()
			typ, err := p.expectIdent()
			if err != nil {
				return r, err
			}
			r.Types = append(r.Types, typ)
			for p.isPunct("|") {
				p.advance()
				typ, err := p.expectIdent()
				if err != nil {
					return r, err
				}
				r.Types = append(r.Types, typ)
			}
		}
		if p.isOperatorText("*") {
			p.advance()
			if err := p.parseHopRange(&r); err != nil {
				return r, err
			}
		}
		if p.isPunct("{") {
			m, err := p.parseMapLiteral()
			if err != nil {
				return r, err
			}
			r.Props = m
		}
		if _, err := p.expectPunct("]"); err != nil {
			return r, err
		}
	}

	rightArrow := false
	if p.isOperatorText("->") {
		p.advance()
		rightArrow = true
	} else {
		if _, err := p.expectPunct("-"); err != nil {
			return r, err
		}
	}

	switch {
	case leftArrow && !rightArrow:
		r.Direction = ast.DirIn
	case rightArrow && !leftArrow:
		r.Direction = ast.DirOut
	default:
		r.Direction = ast.DirEither
	}
	return r, nil
}

// parseHopRange parses the `[*]`, `[*1..3]`, `[*..5]` quantifier body
// immediately after the `*` token has been consumed.
func (p *parser) parseHopRange(r *ast.RelPattern) error {
	if p.peek().Kind == lexer.Int {
		n, err := strconv.Atoi(p.advance().Text)
		if err != nil {
			return p.errf("invalid hop count")
		}
		r.MinHops = &n
	}
	if p.isPunct("..") || p.isOperatorText("..") {
		p.advance()
		if p.peek().Kind == lexer.Int {
			n, err := strconv.Atoi(p.advance().Text)
			if err != nil {
				return p.errf("invalid hop count")
			}
			r.MaxHops = &n
		}
	} else if r.MinHops != nil {
		r.MaxHops = r.MinHops
	}
	return nil
}

func (p *parser) parseMapLiteral() (*ast.MapLiteral, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	m := &ast.MapLiteral{}
	if p.isPunct("}") {
		p.advance()
		return m, nil
	}
	for {
		key, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, val)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- simple clauses ----

func (p *parser) parseReturnItems() (bool, []ast.ReturnItem, error) {
	star := false
	var items []ast.ReturnItem
	if p.isOperatorText("*") {
		p.advance()
		star = true
		return star, items, nil
	}
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return star, nil, err
		}
		item := ast.ReturnItem{Expr: expr}
		if p.isKeyword("AS") {
			p.advance()
			alias, err := p.expectIdent()
			if err != nil {
				return star, nil, err
			}
			item.Alias = alias
		}
		items = append(items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return star, items, nil
}

func (p *parser) parseOrderBy() ([]ast.OrderItem, error) {
	if !p.isKeyword("ORDER") {
		return nil, nil
	}
	p.advance()
	if _, err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	var items []ast.OrderItem
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.isKeyword("DESC") || p.isKeyword("DESCENDING") {
			p.advance()
			desc = true
		} else if p.isKeyword("ASC") || p.isKeyword("ASCENDING") {
			p.advance()
		}
		items = append(items, ast.OrderItem{Expr: expr, Descending: desc})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *parser) parseSkipLimit() (skip, limit ast.Expr, err error) {
	if p.isKeyword("SKIP") {
		p.advance()
		skip, err = p.parseExpr()
		if err != nil {
			return
		}
	}
	if p.isKeyword("LIMIT") {
		p.advance()
		limit, err = p.parseExpr()
		if err != nil {
			return
		}
	}
	return
}

func (p *parser) parseReturn() (*ast.ReturnClause, error) {
	rc := &ast.ReturnClause{}
	if p.isKeyword("DISTINCT") {
		p.advance()
		rc.Distinct = true
	}
	star, items, err := p.parseReturnItems()
	if err != nil {
		return nil, err
	}
	rc.Star, rc.Items = star, items
	if rc.OrderBy, err = p.parseOrderBy(); err != nil {
		return nil, err
	}
	if rc.Skip, rc.Limit, err = p.parseSkipLimit(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (p *parser) parseWith() (*ast.WithClause, error) {
	wc := &ast.WithClause{}
	if p.isKeyword("DISTINCT") {
		p.advance()
		wc.Distinct = true
	}
	star, items, err := p.parseReturnItems()
	if err != nil {
		return nil, err
	}
	wc.Star, wc.Items = star, items
	if p.isKeyword("WHERE") {
		p.advance()
		wc.Where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if wc.OrderBy, err = p.parseOrderBy(); err != nil {
		return nil, err
	}
	if wc.Skip, wc.Limit, err = p.parseSkipLimit(); err != nil {
		return nil, err
	}
	return wc, nil
}

func (p *parser) parseUnwind() (*ast.UnwindClause, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.UnwindClause{Expr: expr, As: name}, nil
}

func (p *parser) parseCreate() (*ast.CreateClause, error) {
	cc := &ast.CreateClause{}
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		cc.Patterns = append(cc.Patterns, part)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return cc, nil
}

func (p *parser) parseMerge() (*ast.MergeClause, error) {
	part, err := p.parsePatternPart()
	if err != nil {
		return nil, err
	}
	mc := &ast.MergeClause{Pattern: part}
	for p.isKeyword("ON") {
		p.advance()
		if p.isKeyword("CREATE") {
			p.advance()
			if _, err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			mc.OnCreate = items
		} else if p.isKeyword("MATCH") {
			p.advance()
			if _, err := p.expectKeyword("SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			mc.OnMatch = items
		} else {
			return nil, p.errf("expected CREATE or MATCH after ON")
		}
	}
	return mc, nil
}

func (p *parser) parseSetItems() ([]ast.SetItem, error) {
	var items []ast.SetItem
	for {
		v, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		item := ast.SetItem{Variable: v}
		switch {
		case p.isPunct("."):
			p.advance()
			prop, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			item.Property = prop
			if _, err := p.expectOperator("="); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item.Value = val
		case p.isPunct(":"):
			for p.isPunct(":") {
				p.advance()
				label, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				item.Labels = append(item.Labels, label)
			}
		default:
			additive := false
			if p.isOperatorText("+") && p.peekAt(1).Kind == lexer.Operator && p.peekAt(1).Text == "=" {
				p.advance()
				additive = true
			}
			if _, err := p.expectOperator("="); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item.Additive = additive
			item.Value = val
		}
		items = append(items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *parser) expectOperator(s string) (lexer.Token, error) {
	t := p.peek()
	if t.Kind != lexer.Operator || t.Text != s {
		return lexer.Token{}, p.errf("expected '" + s + "'")
	}
	return p.advance(), nil
}

func (p *parser) parseSet() (*ast.SetClause, error) {
	items, err := p.parseSetItems()
	if err != nil {
		return nil, err
	}
	return &ast.SetClause{Items: items}, nil
}

func (p *parser) parseRemove() (*ast.RemoveClause, error) {
	rc := &ast.RemoveClause{}
	for {
		v, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		item := ast.RemoveItem{Variable: v}
		if p.isPunct(".") {
			p.advance()
			prop, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			item.Property = prop
		} else if p.isPunct(":") {
			p.advance()
			label, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			item.Label = label
		} else {
			return nil, p.errf("expected '.' or ':' after REMOVE target")
		}
		rc.Items = append(rc.Items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return rc, nil
}

func (p *parser) parseDelete(detach bool) (*ast.DeleteClause, error) {
	dc := &ast.DeleteClause{Detach: detach}
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		dc.Exprs = append(dc.Exprs, expr)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return dc, nil
}

func (p *parser) parseCall() (*ast.CallClause, error) {
	if p.isPunct("{") {
		p.advance()
		sub, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return &ast.CallClause{Subquery: sub}, nil
	}

	var nameParts []string
	part, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	nameParts = append(nameParts, part)
	for p.isPunct(".") {
		p.advance()
		part, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		nameParts = append(nameParts, part)
	}
	cc := &ast.CallClause{Procedure: strings.Join(nameParts, ".")}

	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if !p.isPunct(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			cc.Args = append(cc.Args, arg)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if p.isKeyword("YIELD") {
		p.advance()
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cc.Yield = append(cc.Yield, name)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	return cc, nil
}
