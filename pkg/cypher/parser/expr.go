package parser

import (
	"strconv"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/cypher/lexer"
)

// parseExpr is the expression parser's entry point: a Pratt/precedence-
// climbing descent from OR (loosest) down to primaries, with a postfix
// layer for property access, indexing/slicing, label checks and IS
// (NOT) NULL.
func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseXor() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("XOR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpXor, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Expr, error) {
	if p.isKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonKeywordOps = map[string]ast.BinaryOp{
	"IN":       ast.OpIn,
	"CONTAINS": ast.OpContains,
}

func (p *parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		if t := p.peek(); t.Kind == lexer.Operator {
			switch t.Text {
			case "=", "<>", "<", "<=", ">", ">=", "=~":
				p.advance()
				right, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				left = &ast.BinaryExpr{Op: ast.BinaryOp(t.Text), Left: left, Right: right}
				continue
			}
		}
		if p.isKeyword("IN") || p.isKeyword("CONTAINS") {
			op := comparisonKeywordOps[p.advance().Text]
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
			continue
		}
		if p.isKeyword("STARTS") {
			p.advance()
			if _, err := p.expectKeyword("WITH"); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: ast.OpStartsWith, Left: left, Right: right}
			continue
		}
		if p.isKeyword("ENDS") {
			p.advance()
			if _, err := p.expectKeyword("WITH"); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: ast.OpEndsWith, Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseVectorDistance()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind == lexer.Operator && (t.Text == "+" || t.Text == "-") {
			p.advance()
			right, err := p.parseVectorDistance()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: ast.BinaryOp(t.Text), Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

// parseVectorDistance binds the `<->` vector-distance operator between
// additive and multiplicative expressions, so `n.vec <-> $q + 1` reads
// as `(n.vec <-> $q) + 1`.
func (p *parser) parseVectorDistance() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOperatorText("<->") {
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpVectorDistance, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind == lexer.Operator && (t.Text == "*" || t.Text == "/" || t.Text == "%") {
			p.advance()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: ast.BinaryOp(t.Text), Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

// parsePower is right-associative: 2^3^2 == 2^(3^2).
func (p *parser) parsePower() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.isOperatorText("^") {
		p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Op: ast.OpPow, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.isOperatorText("-") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNeg, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.advance()
			prop, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			expr = &ast.PropertyAccess{Target: expr, Property: prop}
		case p.isPunct(":"):
			p.advance()
			label, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			expr = &ast.LabelCheck{Target: expr, Label: label}
		case p.isPunct("["):
			p.advance()
			expr, err = p.parseIndexOrSlice(expr)
			if err != nil {
				return nil, err
			}
		case p.isKeyword("IS"):
			p.advance()
			negate := false
			if p.isKeyword("NOT") {
				p.advance()
				negate = true
			}
			if _, err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			op := ast.OpIsNull
			if negate {
				op = ast.OpIsNotNull
			}
			expr = &ast.UnaryExpr{Op: op, Operand: expr}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseIndexOrSlice(target ast.Expr) (ast.Expr, error) {
	if p.isPunct("..") || p.isOperatorText("..") {
		p.advance()
		to, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return &ast.ListSlice{Target: target, To: to}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.isPunct("..") || p.isOperatorText("..") {
		p.advance()
		var to ast.Expr
		if !p.isPunct("]") {
			to, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return &ast.ListSlice{Target: target, From: first, To: to}, nil
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return &ast.ListIndex{Target: target, Index: first}, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	t := p.peek()
	switch t.Kind {
	case lexer.Int:
		p.advance()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal")
		}
		return &ast.Literal{Kind: ast.LitInt, Int: n}, nil
	case lexer.Float:
		p.advance()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, p.errf("invalid float literal")
		}
		return &ast.Literal{Kind: ast.LitFloat, Float: f}, nil
	case lexer.String:
		p.advance()
		return &ast.Literal{Kind: ast.LitString, Str: t.Text}, nil
	case lexer.Parameter:
		p.advance()
		return &ast.Parameter{Name: t.Text}, nil
	}

	if p.isKeyword("TRUE") {
		p.advance()
		return &ast.Literal{Kind: ast.LitBool, Bool: true}, nil
	}
	if p.isKeyword("FALSE") {
		p.advance()
		return &ast.Literal{Kind: ast.LitBool, Bool: false}, nil
	}
	if p.isKeyword("NULL") {
		p.advance()
		return &ast.Literal{Kind: ast.LitNull}, nil
	}
	if p.isKeyword("CASE") {
		return p.parseCase()
	}
	if p.isPunct("(") {
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	if p.isPunct("[") {
		return p.parseListLiteral()
	}
	if p.isPunct("{") {
		return p.parseMapLiteral()
	}
	if t.Kind == lexer.Ident {
		return p.parseIdentOrCall()
	}
	return nil, p.errf("unexpected token in expression")
}

func (p *parser) parseListLiteral() (ast.Expr, error) {
	if _, err := p.expectPunct("["); err != nil {
		return nil, err
	}
	lit := &ast.ListLiteral{}
	if p.isPunct("]") {
		p.advance()
		return lit, nil
	}
	for {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Items = append(lit.Items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) parseIdentOrCall() (ast.Expr, error) {
	name := p.advance().Text
	if !p.isPunct("(") {
		return &ast.Variable{Name: name}, nil
	}
	p.advance()
	call := &ast.FunctionCall{Name: name}
	if p.isKeyword("DISTINCT") {
		p.advance()
		call.Distinct = true
	}
	if p.isOperatorText("*") && p.peekAt(1).Kind == lexer.Punct && p.peekAt(1).Text == ")" {
		// count(*)
		p.advance()
	} else if !p.isPunct(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
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
	return call, nil
}

func (p *parser) parseCase() (ast.Expr, error) {
	if _, err := p.expectKeyword("CASE"); err != nil {
		return nil, err
	}
	ce := &ast.CaseExpr{}
	if !p.isKeyword("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Operand = operand
	}
	for p.isKeyword("WHEN") {
		p.advance()
		when, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, ast.CaseBranch{When: when, Then: then})
	}
	if p.isKeyword("ELSE") {
		p.advance()
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = els
	}
	if _, err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return ce, nil
}
