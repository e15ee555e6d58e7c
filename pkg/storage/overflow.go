package storage

import (
	"encoding/json"
	"math"
	"os"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// overflowFile is an append-only blob store backing property values too
// large to inline in a PropRecord: long strings, vectors, lists and maps.
// Space from deleted values is not reclaimed — a future compaction pass
// would be the place to do that — so this trades disk for simplicity,
// preferring straightforward append-and-grow files over an in-place
// allocator.
type overflowFile struct {
	f      *os.File
	offset uint64
}

func openOverflowFile(path string) (*overflowFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.openOverflowFile", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.openOverflowFile", err)
	}
	return &overflowFile{f: f, offset: uint64(info.Size())}, nil
}

func (o *overflowFile) write(data []byte) (ptr uint64, err error) {
	ptr = o.offset
	n, err := o.f.WriteAt(data, int64(ptr))
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.overflow.write", err)
	}
	o.offset += uint64(n)
	return ptr, nil
}

func (o *overflowFile) read(ptr, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := o.f.ReadAt(buf, int64(ptr)); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.overflow.read", err)
	}
	return buf, nil
}

func (o *overflowFile) sync() error {
	if err := o.f.Sync(); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "storage.overflow.sync", err)
	}
	return nil
}

func (o *overflowFile) close() error { return o.f.Close() }

// encodeOverflowValue serializes the part of a Value that does not fit in
// a PropRecord's 8 inline bytes. Strings are raw UTF-8; vectors are a
// little-endian float32 array; lists and maps — composite, recursive
// structures — are encoded with encoding/json, which is a pragmatic
// simplification over a fully custom recursive binary codec (see
// DESIGN.md).
func encodeOverflowValue(v types.Value) ([]byte, error) {
	switch v.Kind {
	case types.KindString:
		return []byte(v.Str), nil
	case types.KindVector:
		buf := make([]byte, 4*len(v.Vector))
		for i, f := range v.Vector {
			be.PutUint32(buf[i*4:i*4+4], math.Float32bits(f))
		}
		return buf, nil
	case types.KindList, types.KindMap, types.KindPoint:
		return json.Marshal(jsonValue(v))
	default:
		return nil, nexuserr.New(nexuserr.KindStorage, nexuserr.CodeStorageIO,
			"storage.encodeOverflowValue", "kind has no overflow encoding: "+v.Kind.String())
	}
}

func decodeOverflowValue(kind types.ValueKind, data []byte) (types.Value, error) {
	switch kind {
	case types.KindString:
		return types.NewString(string(data)), nil
	case types.KindVector:
		vec := make([]float32, len(data)/4)
		for i := range vec {
			vec[i] = math.Float32frombits(be.Uint32(data[i*4 : i*4+4]))
		}
		return types.NewVector(vec), nil
	case types.KindList, types.KindMap, types.KindPoint:
		var jv jsonVal
		if err := json.Unmarshal(data, &jv); err != nil {
			return types.Value{}, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO,
				"storage.decodeOverflowValue", err)
		}
		return jv.toValue(), nil
	default:
		return types.Value{}, nexuserr.New(nexuserr.KindStorage, nexuserr.CodeStorageIO,
			"storage.decodeOverflowValue", "unsupported overflow kind")
	}
}

// jsonVal is the JSON-friendly mirror of types.Value used only for the
// composite kinds (list/map/point) that overflow to disk.
type jsonVal struct {
	Kind  string             `json:"k"`
	Bool  bool               `json:"b,omitempty"`
	Int   int64              `json:"i,omitempty"`
	Float float64            `json:"f,omitempty"`
	Str   string             `json:"s,omitempty"`
	List  []jsonVal          `json:"l,omitempty"`
	Map   map[string]jsonVal `json:"m,omitempty"`
	X     float64            `json:"x,omitempty"`
	Y     float64            `json:"y,omitempty"`
	Z     *float64           `json:"z,omitempty"`
	CRS   string             `json:"crs,omitempty"`
}

func jsonValue(v types.Value) jsonVal {
	switch v.Kind {
	case types.KindList:
		l := make([]jsonVal, len(v.List))
		for i, e := range v.List {
			l[i] = jsonValue(e)
		}
		return jsonVal{Kind: "list", List: l}
	case types.KindMap:
		m := make(map[string]jsonVal, len(v.Map))
		for k, e := range v.Map {
			m[k] = jsonValue(e)
		}
		return jsonVal{Kind: "map", Map: m}
	case types.KindPoint:
		jv := jsonVal{Kind: "point", X: v.Point.X, Y: v.Point.Y, CRS: v.Point.CRS}
		jv.Z = v.Point.Z
		return jv
	default:
		return jsonVal{}
	}
}

func (jv jsonVal) toValue() types.Value {
	switch jv.Kind {
	case "list":
		l := make([]types.Value, len(jv.List))
		for i, e := range jv.List {
			l[i] = e.toValue()
		}
		return types.NewList(l)
	case "map":
		m := make(map[string]types.Value, len(jv.Map))
		for k, e := range jv.Map {
			m[k] = e.toValue()
		}
		return types.NewMap(m)
	case "point":
		return types.NewPoint(&types.Point{X: jv.X, Y: jv.Y, Z: jv.Z, CRS: jv.CRS})
	default:
		return types.Null
	}
}
