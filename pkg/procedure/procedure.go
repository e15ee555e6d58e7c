// Package procedure is the built-in CALL target registry: a qualified-
// name table of ProcedureFuncs the executor's CallProcedure operator
// dispatches into for `CALL db.labels()`-style introspection calls.
package procedure

import (
	"context"

	"github.com/nexusdb/nexus/pkg/executor"
	"github.com/nexusdb/nexus/pkg/types"
)

// Registry holds every procedure name this engine answers CALL with.
type Registry struct {
	fns map[string]executor.ProcedureFunc
}

// New builds a Registry pre-populated with the introspection
// procedures spec.md §9 names: db.labels(), db.relationshipTypes(),
// db.propertyKeys(), db.indexes().
func New() *Registry {
	r := &Registry{fns: map[string]executor.ProcedureFunc{}}
	r.Register("db.labels", dbLabels)
	r.Register("db.relationshipTypes", dbRelationshipTypes)
	r.Register("db.propertyKeys", dbPropertyKeys)
	r.Register("db.indexes", dbIndexes)
	return r
}

// Register adds or overwrites a procedure under name.
func (r *Registry) Register(name string, fn executor.ProcedureFunc) {
	r.fns[name] = fn
}

// Funcs returns the live name->ProcedureFunc table Executor.Run expects.
func (r *Registry) Funcs() map[string]executor.ProcedureFunc { return r.fns }

func dbLabels(ctx context.Context, c *executor.Compiler, args []types.Value) ([]map[string]types.Value, error) {
	names, err := c.Catalog().Labels()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]types.Value, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]types.Value{"label": types.NewString(name)})
	}
	return out, nil
}

func dbRelationshipTypes(ctx context.Context, c *executor.Compiler, args []types.Value) ([]map[string]types.Value, error) {
	names, err := c.Catalog().RelTypes()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]types.Value, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]types.Value{"relationshipType": types.NewString(name)})
	}
	return out, nil
}

func dbPropertyKeys(ctx context.Context, c *executor.Compiler, args []types.Value) ([]map[string]types.Value, error) {
	names, err := c.Catalog().PropertyKeys()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]types.Value, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]types.Value{"propertyKey": types.NewString(name)})
	}
	return out, nil
}

func dbIndexes(ctx context.Context, c *executor.Compiler, args []types.Value) ([]map[string]types.Value, error) {
	defs, err := c.Catalog().ListIndexes()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]types.Value, 0, len(defs))
	for _, def := range defs {
		labelName := ""
		if def.Label != 0 {
			labelName, _ = c.Catalog().LabelName(def.Label)
		}
		propName := ""
		if name, err := c.Catalog().PropertyKeyName(def.Property); err == nil {
			propName = name
		}
		out = append(out, map[string]types.Value{
			"name":     types.NewString(def.Name),
			"kind":     types.NewString(indexKindName(def.Kind)),
			"label":    types.NewString(labelName),
			"property": types.NewString(propName),
		})
	}
	return out, nil
}

func indexKindName(k types.IndexKind) string {
	switch k {
	case types.IndexBitmapLabel:
		return "LABEL_BITMAP"
	case types.IndexBTreeProperty:
		return "BTREE_PROPERTY"
	case types.IndexVectorHNSW:
		return "VECTOR_HNSW"
	default:
		return "UNKNOWN"
	}
}
