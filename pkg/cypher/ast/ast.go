// Package ast defines the syntax tree pkg/cypher/parser builds and
// pkg/planner lowers, covering the Cypher subset named in spec.md §4.5:
// MATCH/OPTIONAL MATCH, WHERE, WITH, UNWIND, UNION/UNION ALL, CREATE,
// MERGE, SET, REMOVE, DELETE/DETACH DELETE, RETURN, ORDER BY, SKIP,
// LIMIT, CALL {…}/CALL proc() YIELD, USE DATABASE, EXPLAIN, PROFILE.
package ast

// Query is one parsed statement: an optional USE DATABASE, a sequence
// of clauses, and an EXPLAIN/PROFILE wrapper flag.
type Query struct {
	UseDatabase string // "" if absent
	Explain     bool
	Profile     bool
	Clauses     []Clause
	Union       *UnionedQuery // non-nil when this query is UNIONed with another
}

// UnionedQuery chains one `UNION [ALL] <query>` onto the query it
// trails; All distinguishes UNION (dedup) from UNION ALL (concat).
type UnionedQuery struct {
	All   bool
	Query *Query
}

// Clause is implemented by every top-level statement clause.
type Clause interface{ clauseNode() }

// Direction is a relationship pattern's arrow direction.
type Direction int

const (
	DirEither Direction = iota
	DirOut
	DirIn
)

// NodePattern is `(var:Label1:Label2 {props})`.
type NodePattern struct {
	Variable string
	Labels   []string
	Props    *MapLiteral
}

// RelPattern is `-[var:TYPE1|TYPE2*min..max {props}]-`.
type RelPattern struct {
	Variable  string
	Types     []string
	Direction Direction
	MinHops   *int // nil when the pattern carries no [*...] quantifier
	MaxHops   *int
	Props     *MapLiteral
}

// PatternElement alternates Node/Rel starting and ending on a node;
// len(Rels) == len(Nodes)-1.
type PatternElement struct {
	Nodes []NodePattern
	Rels  []RelPattern
}

// PatternPart is one comma-separated pattern in a MATCH/CREATE/MERGE,
// optionally bound to a path variable (`p = (a)-->(b)`).
type PatternPart struct {
	Variable string
	Element  PatternElement
}

// IndexHint is a USING INDEX/SCAN/JOIN clause attached to a MATCH.
type IndexHint struct {
	Kind     string // "INDEX", "SCAN", "JOIN"
	Variable string
	Label    string
	Property string // INDEX hints only
}

type MatchClause struct {
	Optional bool
	Patterns []PatternPart
	Where    Expr // nil if absent
	Hints    []IndexHint
}

func (*MatchClause) clauseNode() {}

type ReturnItem struct {
	Expr  Expr
	Alias string // "" if no AS
}

type OrderItem struct {
	Expr       Expr
	Descending bool
}

type ReturnClause struct {
	Distinct bool
	Star     bool // RETURN *
	Items    []ReturnItem
	OrderBy  []OrderItem
	Skip     Expr
	Limit    Expr
}

func (*ReturnClause) clauseNode() {}

type WithClause struct {
	Distinct bool
	Star     bool
	Items    []ReturnItem
	Where    Expr
	OrderBy  []OrderItem
	Skip     Expr
	Limit    Expr
}

func (*WithClause) clauseNode() {}

type UnwindClause struct {
	Expr Expr
	As   string
}

func (*UnwindClause) clauseNode() {}

type CreateClause struct {
	Patterns []PatternPart
}

func (*CreateClause) clauseNode() {}

// SetItem is one assignment inside SET: `n.prop = expr`,
// `n:Label`, or `n = {...}`/`n += {...}`.
type SetItem struct {
	Variable string
	Property string // "" when this is a whole-entity or label assignment
	Labels   []string
	Additive bool // n += {...}
	Value    Expr
}

type SetClause struct {
	Items []SetItem
}

func (*SetClause) clauseNode() {}

// RemoveItem is one target inside REMOVE: a property or a label.
type RemoveItem struct {
	Variable string
	Property string
	Label    string
}

type RemoveClause struct {
	Items []RemoveItem
}

func (*RemoveClause) clauseNode() {}

type DeleteClause struct {
	Detach bool
	Exprs  []Expr
}

func (*DeleteClause) clauseNode() {}

type MergeClause struct {
	Pattern  PatternPart
	OnCreate []SetItem
	OnMatch  []SetItem
}

func (*MergeClause) clauseNode() {}

// CallClause is either a standalone procedure call (`CALL db.labels()
// YIELD label`) or a subquery (`CALL { ... }`).
type CallClause struct {
	Procedure string // qualified name, e.g. "db.labels"; "" for a subquery
	Args      []Expr
	Yield     []string
	Subquery  *Query
}

func (*CallClause) clauseNode() {}

type UnionClause struct {
	All bool
}

func (*UnionClause) clauseNode() {}

// Expr is implemented by every expression node.
type Expr interface{ exprNode() }

type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitInt
	LitFloat
	LitString
	LitBool
)

func (*Literal) exprNode() {}

type ListLiteral struct{ Items []Expr }

func (*ListLiteral) exprNode() {}

type MapLiteral struct {
	Keys   []string
	Values []Expr
}

func (*MapLiteral) exprNode() {}

type Parameter struct{ Name string }

func (*Parameter) exprNode() {}

type Variable struct{ Name string }

func (*Variable) exprNode() {}

// PropertyAccess is `expr.prop`.
type PropertyAccess struct {
	Target   Expr
	Property string
}

func (*PropertyAccess) exprNode() {}

// LabelCheck is `expr:Label`, used in WHERE predicates.
type LabelCheck struct {
	Target Expr
	Label  string
}

func (*LabelCheck) exprNode() {}

type BinaryOp string

const (
	OpAdd       BinaryOp = "+"
	OpSub       BinaryOp = "-"
	OpMul       BinaryOp = "*"
	OpDiv       BinaryOp = "/"
	OpMod       BinaryOp = "%"
	OpPow       BinaryOp = "^"
	OpEq        BinaryOp = "="
	OpNeq       BinaryOp = "<>"
	OpLt        BinaryOp = "<"
	OpLte       BinaryOp = "<="
	OpGt        BinaryOp = ">"
	OpGte       BinaryOp = ">="
	OpAnd       BinaryOp = "AND"
	OpOr        BinaryOp = "OR"
	OpXor       BinaryOp = "XOR"
	OpIn        BinaryOp = "IN"
	OpRegex     BinaryOp = "=~"
	OpStartsWith BinaryOp = "STARTS WITH"
	OpEndsWith  BinaryOp = "ENDS WITH"
	OpContains  BinaryOp = "CONTAINS"
	OpVectorDistance BinaryOp = "<->"
)

type BinaryExpr struct {
	Op          BinaryOp
	Left, Right Expr
}

func (*BinaryExpr) exprNode() {}

type UnaryOp string

const (
	OpNeg   UnaryOp = "-"
	OpNot   UnaryOp = "NOT"
	OpIsNull    UnaryOp = "IS NULL"
	OpIsNotNull UnaryOp = "IS NOT NULL"
)

type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

func (*UnaryExpr) exprNode() {}

// FunctionCall covers both built-in scalar/aggregate functions
// (count, sum, collect, ...) and the vector `distance(a,b)` function.
type FunctionCall struct {
	Name     string
	Args     []Expr
	Distinct bool // count(DISTINCT x)
}

func (*FunctionCall) exprNode() {}

type CaseBranch struct {
	When Expr
	Then Expr
}

// CaseExpr covers both the generic `CASE WHEN ... THEN ... ELSE ...
// END` and the simple `CASE expr WHEN ...` form (Operand nil for the
// generic form).
type CaseExpr struct {
	Operand Expr
	Whens   []CaseBranch
	Else    Expr
}

func (*CaseExpr) exprNode() {}

// ListIndex is `expr[index]`; ListSlice is `expr[from..to]` (From/To
// may be nil for an open-ended slice).
type ListIndex struct {
	Target Expr
	Index  Expr
}

func (*ListIndex) exprNode() {}

type ListSlice struct {
	Target   Expr
	From, To Expr
}

func (*ListSlice) exprNode() {}
