package executor

import "github.com/nexusdb/nexus/pkg/types"

// compareValues orders two scalar values for ORDER BY and range
// predicates: numeric kinds compare numerically (mixed int/float
// promotes to float64), strings compare byte-wise, bools false < true.
// ok is false when the two aren't ordering-comparable — different
// incompatible kinds, or either is a list/map/vector/node/rel/path.
func compareValues(a, b types.Value) (int, bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	switch {
	case isNumeric(a) && isNumeric(b):
		fa, fb := asFloat(a), asFloat(b)
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	case a.Kind == types.KindString && b.Kind == types.KindString:
		switch {
		case a.Str < b.Str:
			return -1, true
		case a.Str > b.Str:
			return 1, true
		default:
			return 0, true
		}
	case a.Kind == types.KindBool && b.Kind == types.KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0, true
		case !a.Bool && b.Bool:
			return -1, true
		default:
			return 1, true
		}
	default:
		return 0, false
	}
}

func isNumeric(v types.Value) bool { return v.Kind == types.KindInt || v.Kind == types.KindFloat }

func asFloat(v types.Value) float64 {
	if v.Kind == types.KindInt {
		return float64(v.Int)
	}
	return v.Float
}
