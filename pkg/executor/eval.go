package executor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexusdb/nexus/pkg/catalog"
	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// evalCtx is the read-only environment expression evaluation needs:
// the catalog to resolve property/label/type names to interned ids,
// and the query's bound parameters.
type evalCtx struct {
	cat    *catalog.Catalog
	params map[string]types.Value
}

// Eval computes e against row's bindings. The result is a types.Value,
// which may carry KindNode/KindRelationship/KindPath when e resolves to
// a bound graph entity rather than a scalar property.
func Eval(ec *evalCtx, row Row, e ast.Expr) (types.Value, error) {
	switch ex := e.(type) {
	case *ast.Literal:
		return evalLiteral(ex), nil

	case *ast.Parameter:
		v, ok := ec.params[ex.Name]
		if !ok {
			return types.Null, nil
		}
		return v, nil

	case *ast.Variable:
		v, ok := row[ex.Name]
		if !ok {
			return types.Null, nil
		}
		return v, nil

	case *ast.PropertyAccess:
		target, err := Eval(ec, row, ex.Target)
		if err != nil {
			return types.Null, err
		}
		return ec.propertyOf(target, ex.Property)

	case *ast.LabelCheck:
		target, err := Eval(ec, row, ex.Target)
		if err != nil {
			return types.Null, err
		}
		if target.Kind != types.KindNode || target.Node == nil {
			return types.NewBool(false), nil
		}
		id, ok, err := ec.cat.LookupLabel(ex.Label)
		if err != nil {
			return types.Null, wrapf(nexuserr.CodeStorageIO, "executor.Eval", err)
		}
		if !ok {
			return types.NewBool(false), nil
		}
		return types.NewBool(target.Node.HasLabel(id)), nil

	case *ast.BinaryExpr:
		return evalBinary(ec, row, ex)

	case *ast.UnaryExpr:
		return evalUnary(ec, row, ex)

	case *ast.FunctionCall:
		return evalFunction(ec, row, ex)

	case *ast.CaseExpr:
		return evalCase(ec, row, ex)

	case *ast.ListLiteral:
		items := make([]types.Value, 0, len(ex.Items))
		for _, item := range ex.Items {
			v, err := Eval(ec, row, item)
			if err != nil {
				return types.Null, err
			}
			items = append(items, v)
		}
		return types.NewList(items), nil

	case *ast.MapLiteral:
		m := make(map[string]types.Value, len(ex.Keys))
		for i, k := range ex.Keys {
			v, err := Eval(ec, row, ex.Values[i])
			if err != nil {
				return types.Null, err
			}
			m[k] = v
		}
		return types.NewMap(m), nil

	case *ast.ListIndex:
		target, err := Eval(ec, row, ex.Target)
		if err != nil {
			return types.Null, err
		}
		idx, err := Eval(ec, row, ex.Index)
		if err != nil {
			return types.Null, err
		}
		return evalListIndex(target, idx)

	case *ast.ListSlice:
		return evalListSlice(ec, row, ex)

	default:
		return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.Eval", fmt.Sprintf("unsupported expression %T", e))
	}
}

func evalLiteral(l *ast.Literal) types.Value {
	switch l.Kind {
	case ast.LitInt:
		return types.NewInt(l.Int)
	case ast.LitFloat:
		return types.NewFloat(l.Float)
	case ast.LitString:
		return types.NewString(l.Str)
	case ast.LitBool:
		return types.NewBool(l.Bool)
	default:
		return types.Null
	}
}

// propertyOf resolves target.property for a node, relationship or map
// value. Any other target kind, or a property never interned by the
// catalog, yields NULL rather than an error — Cypher property access on
// a missing key is NULL, not a failure.
func (ec *evalCtx) propertyOf(target types.Value, prop string) (types.Value, error) {
	switch target.Kind {
	case types.KindNode:
		if target.Node == nil {
			return types.Null, nil
		}
		id, ok, err := ec.cat.LookupPropertyKey(prop)
		if err != nil {
			return types.Null, wrapf(nexuserr.CodeStorageIO, "executor.propertyOf", err)
		}
		if !ok {
			return types.Null, nil
		}
		v, ok := target.Node.Properties[id]
		if !ok {
			return types.Null, nil
		}
		return v, nil

	case types.KindRelationship:
		if target.Rel == nil {
			return types.Null, nil
		}
		id, ok, err := ec.cat.LookupPropertyKey(prop)
		if err != nil {
			return types.Null, wrapf(nexuserr.CodeStorageIO, "executor.propertyOf", err)
		}
		if !ok {
			return types.Null, nil
		}
		v, ok := target.Rel.Properties[id]
		if !ok {
			return types.Null, nil
		}
		return v, nil

	case types.KindMap:
		v, ok := target.Map[prop]
		if !ok {
			return types.Null, nil
		}
		return v, nil

	default:
		return types.Null, nil
	}
}

func evalUnary(ec *evalCtx, row Row, ex *ast.UnaryExpr) (types.Value, error) {
	switch ex.Op {
	case ast.OpIsNull:
		v, err := Eval(ec, row, ex.Operand)
		if err != nil {
			return types.Null, err
		}
		return types.NewBool(v.IsNull()), nil

	case ast.OpIsNotNull:
		v, err := Eval(ec, row, ex.Operand)
		if err != nil {
			return types.Null, err
		}
		return types.NewBool(!v.IsNull()), nil

	case ast.OpNot:
		v, err := Eval(ec, row, ex.Operand)
		if err != nil {
			return types.Null, err
		}
		if v.IsNull() {
			return types.Null, nil
		}
		return types.NewBool(!v.Truthy()), nil

	case ast.OpNeg:
		v, err := Eval(ec, row, ex.Operand)
		if err != nil {
			return types.Null, err
		}
		if v.IsNull() {
			return types.Null, nil
		}
		switch v.Kind {
		case types.KindInt:
			return types.NewInt(-v.Int), nil
		case types.KindFloat:
			return types.NewFloat(-v.Float), nil
		default:
			return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalUnary", "- requires a numeric operand")
		}

	default:
		return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.evalUnary", "unsupported unary operator "+string(ex.Op))
	}
}

func evalBinary(ec *evalCtx, row Row, ex *ast.BinaryExpr) (types.Value, error) {
	// AND/OR implement Cypher's three-valued logic with short-circuiting,
	// so they're evaluated before the operands are forced to a concrete
	// boolean the way arithmetic/comparison operators need.
	switch ex.Op {
	case ast.OpAnd:
		l, err := Eval(ec, row, ex.Left)
		if err != nil {
			return types.Null, err
		}
		if l.Kind == types.KindBool && !l.Bool {
			return types.NewBool(false), nil
		}
		r, err := Eval(ec, row, ex.Right)
		if err != nil {
			return types.Null, err
		}
		if r.Kind == types.KindBool && !r.Bool {
			return types.NewBool(false), nil
		}
		if l.Kind == types.KindBool && r.Kind == types.KindBool {
			return types.NewBool(true), nil
		}
		return types.Null, nil

	case ast.OpOr:
		l, err := Eval(ec, row, ex.Left)
		if err != nil {
			return types.Null, err
		}
		if l.Kind == types.KindBool && l.Bool {
			return types.NewBool(true), nil
		}
		r, err := Eval(ec, row, ex.Right)
		if err != nil {
			return types.Null, err
		}
		if r.Kind == types.KindBool && r.Bool {
			return types.NewBool(true), nil
		}
		if l.Kind == types.KindBool && r.Kind == types.KindBool {
			return types.NewBool(false), nil
		}
		return types.Null, nil

	case ast.OpXor:
		l, err := Eval(ec, row, ex.Left)
		if err != nil {
			return types.Null, err
		}
		r, err := Eval(ec, row, ex.Right)
		if err != nil {
			return types.Null, err
		}
		if l.Kind != types.KindBool || r.Kind != types.KindBool {
			return types.Null, nil
		}
		return types.NewBool(l.Bool != r.Bool), nil
	}

	l, err := Eval(ec, row, ex.Left)
	if err != nil {
		return types.Null, err
	}
	r, err := Eval(ec, row, ex.Right)
	if err != nil {
		return types.Null, err
	}

	switch ex.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod, ast.OpPow:
		return evalArith(ex.Op, l, r)
	case ast.OpEq:
		if l.IsNull() || r.IsNull() {
			return types.Null, nil
		}
		return types.NewBool(l.Equal(r)), nil
	case ast.OpNeq:
		if l.IsNull() || r.IsNull() {
			return types.Null, nil
		}
		return types.NewBool(!l.Equal(r)), nil
	case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		cmp, ok := compareValues(l, r)
		if !ok {
			return types.Null, nil
		}
		switch ex.Op {
		case ast.OpLt:
			return types.NewBool(cmp < 0), nil
		case ast.OpLte:
			return types.NewBool(cmp <= 0), nil
		case ast.OpGt:
			return types.NewBool(cmp > 0), nil
		default:
			return types.NewBool(cmp >= 0), nil
		}
	case ast.OpIn:
		return evalIn(l, r)
	case ast.OpStartsWith, ast.OpEndsWith, ast.OpContains:
		return evalStringPredicate(ex.Op, l, r)
	case ast.OpRegex:
		return evalRegex(l, r)
	case ast.OpVectorDistance:
		return evalVectorDistance(l, r)
	default:
		return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.evalBinary", "unsupported operator "+string(ex.Op))
	}
}

func evalArith(op ast.BinaryOp, l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Null, nil
	}
	if op == ast.OpAdd && l.Kind == types.KindString && r.Kind == types.KindString {
		return types.NewString(l.Str + r.Str), nil
	}
	if op == ast.OpAdd && (l.Kind == types.KindList || r.Kind == types.KindList) {
		return types.NewList(append(append([]types.Value{}, l.List...), r.List...)), nil
	}
	if !isNumeric(l) || !isNumeric(r) {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalArith", string(op)+" requires numeric operands")
	}
	if l.Kind == types.KindInt && r.Kind == types.KindInt {
		a, b := l.Int, r.Int
		switch op {
		case ast.OpAdd:
			return types.NewInt(a + b), nil
		case ast.OpSub:
			return types.NewInt(a - b), nil
		case ast.OpMul:
			return types.NewInt(a * b), nil
		case ast.OpDiv:
			if b == 0 {
				return types.Null, errf(nexuserr.CodeDivideByZero, "executor.evalArith", "division by zero")
			}
			return types.NewInt(a / b), nil
		case ast.OpMod:
			if b == 0 {
				return types.Null, errf(nexuserr.CodeDivideByZero, "executor.evalArith", "division by zero")
			}
			return types.NewInt(a % b), nil
		case ast.OpPow:
			return types.NewFloat(math.Pow(float64(a), float64(b))), nil
		}
	}
	a, b := asFloat(l), asFloat(r)
	switch op {
	case ast.OpAdd:
		return types.NewFloat(a + b), nil
	case ast.OpSub:
		return types.NewFloat(a - b), nil
	case ast.OpMul:
		return types.NewFloat(a * b), nil
	case ast.OpDiv:
		if b == 0 {
			return types.Null, errf(nexuserr.CodeDivideByZero, "executor.evalArith", "division by zero")
		}
		return types.NewFloat(a / b), nil
	case ast.OpMod:
		if b == 0 {
			return types.Null, errf(nexuserr.CodeDivideByZero, "executor.evalArith", "division by zero")
		}
		return types.NewFloat(math.Mod(a, b)), nil
	case ast.OpPow:
		return types.NewFloat(math.Pow(a, b)), nil
	}
	return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.evalArith", "unsupported arithmetic operator")
}

func evalIn(l, r types.Value) (types.Value, error) {
	if r.Kind != types.KindList {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalIn", "IN requires a list on the right")
	}
	if l.IsNull() {
		return types.Null, nil
	}
	for _, item := range r.List {
		if l.Equal(item) {
			return types.NewBool(true), nil
		}
	}
	return types.NewBool(false), nil
}

func evalStringPredicate(op ast.BinaryOp, l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Null, nil
	}
	if l.Kind != types.KindString || r.Kind != types.KindString {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalStringPredicate", string(op)+" requires string operands")
	}
	switch op {
	case ast.OpStartsWith:
		return types.NewBool(strings.HasPrefix(l.Str, r.Str)), nil
	case ast.OpEndsWith:
		return types.NewBool(strings.HasSuffix(l.Str, r.Str)), nil
	case ast.OpContains:
		return types.NewBool(strings.Contains(l.Str, r.Str)), nil
	default:
		return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.evalStringPredicate", "unsupported predicate")
	}
}

func evalRegex(l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Null, nil
	}
	if l.Kind != types.KindString || r.Kind != types.KindString {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalRegex", "=~ requires string operands")
	}
	re, err := regexp.Compile(r.Str)
	if err != nil {
		return types.Null, errf(nexuserr.CodeSyntax, "executor.evalRegex", "invalid regex: "+err.Error())
	}
	return types.NewBool(re.MatchString(l.Str)), nil
}

// evalVectorDistance backs the `<->` operator the HNSW vector index
// also uses for ANN search; in a plain expression context (outside an
// IndexSeek's ORDER BY) it's computed directly, cosine distance by
// default.
func evalVectorDistance(l, r types.Value) (types.Value, error) {
	if l.Kind != types.KindVector || r.Kind != types.KindVector {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalVectorDistance", "<-> requires two vectors")
	}
	if len(l.Vector) != len(r.Vector) {
		return types.Null, errf(nexuserr.CodeVectorDimensionMismatch, "executor.evalVectorDistance", "vector dimension mismatch")
	}
	var dot, na, nb float64
	for i := range l.Vector {
		a, b := float64(l.Vector[i]), float64(r.Vector[i])
		dot += a * b
		na += a * a
		nb += b * b
	}
	if na == 0 || nb == 0 {
		return types.NewFloat(1), nil
	}
	return types.NewFloat(1 - dot/(math.Sqrt(na)*math.Sqrt(nb))), nil
}

func evalCase(ec *evalCtx, row Row, ex *ast.CaseExpr) (types.Value, error) {
	var operand types.Value
	var hasOperand bool
	if ex.Operand != nil {
		v, err := Eval(ec, row, ex.Operand)
		if err != nil {
			return types.Null, err
		}
		operand, hasOperand = v, true
	}
	for _, branch := range ex.Whens {
		if hasOperand {
			cond, err := Eval(ec, row, branch.When)
			if err != nil {
				return types.Null, err
			}
			if !operand.Equal(cond) {
				continue
			}
		} else {
			cond, err := Eval(ec, row, branch.When)
			if err != nil {
				return types.Null, err
			}
			if !cond.Truthy() {
				continue
			}
		}
		return Eval(ec, row, branch.Then)
	}
	if ex.Else != nil {
		return Eval(ec, row, ex.Else)
	}
	return types.Null, nil
}

func evalListIndex(target, idx types.Value) (types.Value, error) {
	if target.Kind != types.KindList {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalListIndex", "[] requires a list")
	}
	if idx.Kind != types.KindInt {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalListIndex", "list index must be an integer")
	}
	i := idx.Int
	if i < 0 {
		i += int64(len(target.List))
	}
	if i < 0 || i >= int64(len(target.List)) {
		return types.Null, nil
	}
	return target.List[i], nil
}

func evalListSlice(ec *evalCtx, row Row, ex *ast.ListSlice) (types.Value, error) {
	target, err := Eval(ec, row, ex.Target)
	if err != nil {
		return types.Null, err
	}
	if target.Kind != types.KindList {
		return types.Null, errf(nexuserr.CodeTypeMismatch, "executor.evalListSlice", "[..] requires a list")
	}
	n := int64(len(target.List))
	from, to := int64(0), n
	if ex.From != nil {
		v, err := Eval(ec, row, ex.From)
		if err != nil {
			return types.Null, err
		}
		if v.Kind == types.KindInt {
			from = v.Int
			if from < 0 {
				from += n
			}
		}
	}
	if ex.To != nil {
		v, err := Eval(ec, row, ex.To)
		if err != nil {
			return types.Null, err
		}
		if v.Kind == types.KindInt {
			to = v.Int
			if to < 0 {
				to += n
			}
		}
	}
	if from < 0 {
		from = 0
	}
	if to > n {
		to = n
	}
	if from >= to {
		return types.NewList(nil), nil
	}
	return types.NewList(append([]types.Value{}, target.List[from:to]...)), nil
}

// asString coerces a scalar value to its Cypher toString() rendering.
func asString(v types.Value) string {
	switch v.Kind {
	case types.KindString:
		return v.Str
	case types.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case types.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case types.KindBool:
		return strconv.FormatBool(v.Bool)
	case types.KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
