// Package types defines the core graph data model shared by every layer of
// the engine: storage, catalog, planner, executor and replication all speak
// these types rather than re-deriving them from wire or disk formats.
package types

import "time"

// NodeID identifies a node. Dense and stable; a deleted node's id may be
// reused by a later create.
type NodeID uint64

// RelID identifies a relationship.
type RelID uint64

// LabelID identifies an interned label name.
type LabelID uint32

// RelTypeID identifies an interned relationship type name.
type RelTypeID uint32

// PropertyKeyID identifies an interned property key name.
type PropertyKeyID uint32

// InvalidID marks an absent adjacency pointer or record link.
const InvalidID = ^uint64(0)

// Direction constrains relationship traversal.
type Direction uint8

const (
	DirOutgoing Direction = iota
	DirIncoming
	DirBoth
)

// Node is the logical (in-memory) view of a node entity, assembled from the
// node record, its label bitmap membership and its property chain.
type Node struct {
	ID         NodeID
	Labels     []LabelID
	Properties map[PropertyKeyID]Value
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(id LabelID) bool {
	for _, l := range n.Labels {
		if l == id {
			return true
		}
	}
	return false
}

// Relationship is the logical view of a relationship entity.
type Relationship struct {
	ID         RelID
	Type       RelTypeID
	Start      NodeID
	End        NodeID
	Properties map[PropertyKeyID]Value
}

// OtherEnd returns the endpoint of the relationship that is not n.
func (r *Relationship) OtherEnd(n NodeID) NodeID {
	if r.Start == n {
		return r.End
	}
	return r.Start
}

// ValueKind tags the dynamic type carried by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindPoint
	KindList
	KindMap
	KindVector
	KindNode
	KindRelationship
	KindPath
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindPoint:
		return "point"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindVector:
		return "vector"
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// Point is a 2D/3D coordinate with a coordinate reference system tag,
// matching the QueryResult Value shape in spec.md §6.
type Point struct {
	X, Y float64
	Z    *float64
	CRS  string
}

// Value is a tagged union over every property/expression value kind Cypher
// can produce. The inline fields keep small scalars allocation-free; List,
// Map and Vector hold their own backing slices/maps. Large string/list/
// vector payloads are spilled to the property store's overflow chain by
// pkg/storage rather than by Value itself — Value is a pure in-memory view.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	Point  *Point
	List   []Value
	Map    map[string]Value
	Vector []float32

	// Node, Rel and PathVal back KindNode/KindRelationship/KindPath — set
	// only when RETURN projects a bound graph entity rather than a
	// property, per the node/relationship/path Value variants spec.md §6
	// requires of QueryResult.
	Node    *Node
	Rel     *Relationship
	PathVal *Path
}

// Null is the canonical NULL value, distinct from the Go zero Value only in
// intent — both carry KindNull, but callers should prefer this constructor
// for readability at call sites.
var Null = Value{Kind: KindNull}

func NewBool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func NewInt(i int64) Value       { return Value{Kind: KindInt, Int: i} }
func NewFloat(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func NewString(s string) Value   { return Value{Kind: KindString, Str: s} }
func NewList(v []Value) Value    { return Value{Kind: KindList, List: v} }
func NewMap(v map[string]Value) Value {
	return Value{Kind: KindMap, Map: v}
}
func NewVector(v []float32) Value { return Value{Kind: KindVector, Vector: v} }
func NewPoint(p *Point) Value     { return Value{Kind: KindPoint, Point: p} }
func NewNodeValue(n *Node) Value         { return Value{Kind: KindNode, Node: n} }
func NewRelationshipValue(r *Relationship) Value { return Value{Kind: KindRelationship, Rel: r} }
func NewPathValue(p *Path) Value         { return Value{Kind: KindPath, PathVal: p} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy implements Cypher's boolean coercion for WHERE predicates: only an
// actual boolean participates; anything else (including NULL) is not true,
// and the caller is expected to special-case NULL propagation separately
// where three-valued logic applies.
func (v Value) Truthy() bool { return v.Kind == KindBool && v.Bool }

// Equal implements Cypher value equality (NULL is never equal to anything,
// including NULL, per Cypher semantics — callers needing IS NULL must check
// Kind directly).
func (v Value) Equal(o Value) bool {
	if v.Kind == KindNull || o.Kind == KindNull {
		return false
	}
	if v.Kind != o.Kind {
		// Numeric cross-kind comparison: 1 = 1.0
		if v.Kind == KindInt && o.Kind == KindFloat {
			return float64(v.Int) == o.Float
		}
		if v.Kind == KindFloat && o.Kind == KindInt {
			return v.Float == float64(o.Int)
		}
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindNode:
		return v.Node != nil && o.Node != nil && v.Node.ID == o.Node.ID
	case KindRelationship:
		return v.Rel != nil && o.Rel != nil && v.Rel.ID == o.Rel.ID
	default:
		return false
	}
}

// Path is an alternating sequence of nodes and relationships produced by
// variable-length expand and shortest-path operators.
type Path struct {
	Nodes []Node
	Rels  []Relationship
}

// IndexKind distinguishes the index structures the catalog can register.
type IndexKind uint8

const (
	IndexBitmapLabel IndexKind = iota
	IndexBTreeProperty
	IndexVectorHNSW
)

// IndexDefinition is the catalog's persisted record of an index.
type IndexDefinition struct {
	Name       string
	Kind       IndexKind
	Label      LabelID   // for label-bitmap and btree/vector indexes on a label
	RelType    RelTypeID // alternative to Label for (type, property) btree indexes
	OnRelType  bool
	Property   PropertyKeyID
	Dimensions int // vector index only
	M          int // HNSW out-degree
	EfConstr   int
	EfSearch   int
}

// Stats answers the engine contract's stats(db) operation.
type Stats struct {
	NodeCount        uint64
	RelCount         uint64
	LabelCount       int
	RelTypeCount     int
	PropertyKeyCount int
	IndexCount       int
	StorageBytes     int64
	CollectedAt      time.Time
}

// QueryResult is the shape returned by Engine.ExecuteCypher.
type QueryResult struct {
	Columns         []string
	Rows            [][]Value
	Stats           QueryStats
	ExecutionTimeMs float64
	ExecutionTimeUs int64
}

// QueryStats carries PROFILE-style counters; zero-valued for a plain
// EXPLAIN or an un-profiled execution.
type QueryStats struct {
	RowsReturned   int64
	DbHits         int64
	OperatorStats  []OperatorStat
}

// ReplicationStatus answers the engine contract's replication_status() op.
// A standalone engine (no replication.role configured) reports RoleStandalone
// with the rest of the fields zero-valued.
type ReplicationStatus struct {
	Role              string
	MasterAddr        string
	ConnectedReplicas int
	LastAppliedOffset uint64
	LagBytes          int64
}

// OperatorStat is one node of a profiled physical plan.
type OperatorStat struct {
	Operator      string
	EstimatedRows float64
	ActualRows    int64
	ElapsedUs     int64
}
