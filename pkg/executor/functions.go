package executor

import (
	"math"
	"strconv"
	"strings"

	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// aggregateFuncNames mirrors planner's aggregate detection (lower.go's
// aggregateFuncs) so evalFunction can reject an aggregate call that
// reached plain expression evaluation instead of the Aggregate
// operator — it should never happen past a correctly lowered plan, but
// a clear error beats a silently wrong scalar result.
var aggregateFuncNames = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "collect": true,
}

func evalFunction(ec *evalCtx, row Row, f *ast.FunctionCall) (types.Value, error) {
	name := strings.ToLower(f.Name)
	if aggregateFuncNames[name] {
		return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.evalFunction", name+"() is an aggregate, used outside an Aggregate operator")
	}

	args := make([]types.Value, 0, len(f.Args))
	for _, a := range f.Args {
		v, err := Eval(ec, row, a)
		if err != nil {
			return types.Null, err
		}
		args = append(args, v)
	}

	switch name {
	case "id":
		return fnID(args)
	case "labels":
		return fnLabels(ec, args)
	case "type":
		return fnType(ec, args)
	case "properties":
		return fnProperties(ec, args)
	case "keys":
		return fnKeys(ec, args)
	case "startnode":
		return fnStartNode(args)
	case "endnode":
		return fnEndNode(args)
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return types.Null, nil
	case "size":
		return fnSize(args)
	case "tointeger":
		return fnToInteger(args)
	case "tofloat":
		return fnToFloat(args)
	case "tostring":
		if len(args) != 1 {
			return types.Null, argErr(name)
		}
		if args[0].IsNull() {
			return types.Null, nil
		}
		return types.NewString(asString(args[0])), nil
	case "toboolean":
		return fnToBoolean(args)
	case "abs":
		if len(args) != 1 || !isNumeric(args[0]) {
			return types.Null, argErr(name)
		}
		if args[0].Kind == types.KindInt {
			v := args[0].Int
			if v < 0 {
				v = -v
			}
			return types.NewInt(v), nil
		}
		return types.NewFloat(math.Abs(args[0].Float)), nil
	case "sqrt":
		if len(args) != 1 || !isNumeric(args[0]) {
			return types.Null, argErr(name)
		}
		return types.NewFloat(math.Sqrt(asFloat(args[0]))), nil
	case "floor":
		if len(args) != 1 || !isNumeric(args[0]) {
			return types.Null, argErr(name)
		}
		return types.NewFloat(math.Floor(asFloat(args[0]))), nil
	case "ceil":
		if len(args) != 1 || !isNumeric(args[0]) {
			return types.Null, argErr(name)
		}
		return types.NewFloat(math.Ceil(asFloat(args[0]))), nil
	case "toupper":
		if len(args) != 1 || args[0].Kind != types.KindString {
			return types.Null, argErr(name)
		}
		return types.NewString(strings.ToUpper(args[0].Str)), nil
	case "tolower":
		if len(args) != 1 || args[0].Kind != types.KindString {
			return types.Null, argErr(name)
		}
		return types.NewString(strings.ToLower(args[0].Str)), nil
	case "trim":
		if len(args) != 1 || args[0].Kind != types.KindString {
			return types.Null, argErr(name)
		}
		return types.NewString(strings.TrimSpace(args[0].Str)), nil
	case "distance":
		if len(args) != 2 {
			return types.Null, argErr(name)
		}
		return evalVectorDistance(args[0], args[1])
	default:
		return types.Null, errf(nexuserr.CodeUnsupportedPattern, "executor.evalFunction", "unknown function "+f.Name)
	}
}

func argErr(name string) error {
	return errf(nexuserr.CodeTypeMismatch, "executor.evalFunction", name+"() called with wrong argument types")
}

func fnID(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Null, argErr("id")
	}
	switch args[0].Kind {
	case types.KindNode:
		return types.NewInt(int64(args[0].Node.ID)), nil
	case types.KindRelationship:
		return types.NewInt(int64(args[0].Rel.ID)), nil
	default:
		return types.Null, argErr("id")
	}
}

func fnLabels(ec *evalCtx, args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Kind != types.KindNode {
		return types.Null, argErr("labels")
	}
	out := make([]types.Value, 0, len(args[0].Node.Labels))
	for _, id := range args[0].Node.Labels {
		name, err := ec.cat.LabelName(id)
		if err != nil {
			continue
		}
		out = append(out, types.NewString(name))
	}
	return types.NewList(out), nil
}

func fnType(ec *evalCtx, args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Kind != types.KindRelationship {
		return types.Null, argErr("type")
	}
	name, err := ec.cat.RelTypeName(args[0].Rel.Type)
	if err != nil {
		return types.Null, wrapf(nexuserr.CodeStorageIO, "executor.fnType", err)
	}
	return types.NewString(name), nil
}

func fnProperties(ec *evalCtx, args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Null, argErr("properties")
	}
	var props map[types.PropertyKeyID]types.Value
	switch args[0].Kind {
	case types.KindNode:
		props = args[0].Node.Properties
	case types.KindRelationship:
		props = args[0].Rel.Properties
	case types.KindMap:
		return args[0], nil
	default:
		return types.Null, argErr("properties")
	}
	out := make(map[string]types.Value, len(props))
	for id, v := range props {
		name, err := ec.cat.PropertyKeyName(id)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return types.NewMap(out), nil
}

func fnKeys(ec *evalCtx, args []types.Value) (types.Value, error) {
	props, err := fnProperties(ec, args)
	if err != nil {
		return types.Null, err
	}
	out := make([]types.Value, 0, len(props.Map))
	for k := range props.Map {
		out = append(out, types.NewString(k))
	}
	return types.NewList(out), nil
}

func fnStartNode(args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Kind != types.KindRelationship {
		return types.Null, argErr("startNode")
	}
	return types.NewInt(int64(args[0].Rel.Start)), nil
}

func fnEndNode(args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Kind != types.KindRelationship {
		return types.Null, argErr("endNode")
	}
	return types.NewInt(int64(args[0].Rel.End)), nil
}

func fnSize(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Null, argErr("size")
	}
	switch args[0].Kind {
	case types.KindList:
		return types.NewInt(int64(len(args[0].List))), nil
	case types.KindString:
		return types.NewInt(int64(len(args[0].Str))), nil
	case types.KindNull:
		return types.Null, nil
	default:
		return types.Null, argErr("size")
	}
}

func fnToInteger(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Null, argErr("toInteger")
	}
	switch args[0].Kind {
	case types.KindInt:
		return args[0], nil
	case types.KindFloat:
		return types.NewInt(int64(args[0].Float)), nil
	case types.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(args[0].Str), 10, 64)
		if err != nil {
			return types.Null, nil
		}
		return types.NewInt(n), nil
	case types.KindNull:
		return types.Null, nil
	default:
		return types.Null, argErr("toInteger")
	}
}

func fnToFloat(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Null, argErr("toFloat")
	}
	switch args[0].Kind {
	case types.KindFloat:
		return args[0], nil
	case types.KindInt:
		return types.NewFloat(float64(args[0].Int)), nil
	case types.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(args[0].Str), 64)
		if err != nil {
			return types.Null, nil
		}
		return types.NewFloat(f), nil
	case types.KindNull:
		return types.Null, nil
	default:
		return types.Null, argErr("toFloat")
	}
}

func fnToBoolean(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Null, argErr("toBoolean")
	}
	switch args[0].Kind {
	case types.KindBool:
		return args[0], nil
	case types.KindString:
		switch strings.ToLower(args[0].Str) {
		case "true":
			return types.NewBool(true), nil
		case "false":
			return types.NewBool(false), nil
		default:
			return types.Null, nil
		}
	case types.KindNull:
		return types.Null, nil
	default:
		return types.Null, argErr("toBoolean")
	}
}
