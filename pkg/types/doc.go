/*
Package types defines the core graph data model used throughout Nexus.

It holds the logical (in-memory) view of nodes, relationships and property
values, plus the shapes the engine's public contract returns: QueryResult,
Stats, Path and IndexDefinition. Storage, catalog, planner and executor all
build on these types rather than re-deriving them from their own on-disk or
wire formats.

# Identity

Nodes and relationships are identified by dense 64-bit ids (NodeID, RelID)
that are stable for the lifetime of the entity. Once an entity is deleted
its id goes on pkg/storage's free list and a later create may reuse it. Labels,
relationship types and property keys are interned into small integer ids
(LabelID, RelTypeID, PropertyKeyID) by pkg/catalog; this package only
defines the id types themselves.

# Values

Value is a tagged union over every Cypher value kind: null, boolean,
integer, float, string, point, list, map and vector-of-float. It carries
inline scalar fields plus slice/map fields for composite kinds, so a plain
integer property costs no extra allocation. Equal implements Cypher's
value-equality rules (NULL never equals anything, integers compare equal
to same-valued floats); Truthy implements WHERE-predicate boolean
coercion.

# Thread safety

Node, Relationship and Value are read-safe from multiple goroutines once
constructed; callers that mutate a Node.Properties map concurrently with
a reader must synchronize themselves — the storage and transaction layers
never hand out a Node that is still being written to.
*/
package types
