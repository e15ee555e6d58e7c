package txn

import (
	"encoding/json"

	"github.com/nexusdb/nexus/pkg/types"
)

// valueDTO is the JSON-friendly mirror of types.Value used to encode
// property maps into WAL mutation payloads. JSON is a pragmatic choice
// here (mirroring pkg/storage's own overflow encoding for composite
// values) since WAL payload size is not the bottleneck mutation
// throughput is bound by — fsync latency is.
type valueDTO struct {
	Kind   uint8              `json:"k"`
	Bool   bool               `json:"b,omitempty"`
	Int    int64              `json:"i,omitempty"`
	Float  float64            `json:"f,omitempty"`
	Str    string             `json:"s,omitempty"`
	List   []valueDTO         `json:"l,omitempty"`
	Map    map[string]valueDTO `json:"m,omitempty"`
	Vector []float32          `json:"v,omitempty"`
	PointX float64            `json:"px,omitempty"`
	PointY float64            `json:"py,omitempty"`
	PointZ *float64           `json:"pz,omitempty"`
	PointCRS string           `json:"pcrs,omitempty"`
}

func toDTO(v types.Value) valueDTO {
	dto := valueDTO{Kind: uint8(v.Kind)}
	switch v.Kind {
	case types.KindBool:
		dto.Bool = v.Bool
	case types.KindInt:
		dto.Int = v.Int
	case types.KindFloat:
		dto.Float = v.Float
	case types.KindString:
		dto.Str = v.Str
	case types.KindVector:
		dto.Vector = v.Vector
	case types.KindList:
		dto.List = make([]valueDTO, len(v.List))
		for i, e := range v.List {
			dto.List[i] = toDTO(e)
		}
	case types.KindMap:
		dto.Map = make(map[string]valueDTO, len(v.Map))
		for k, e := range v.Map {
			dto.Map[k] = toDTO(e)
		}
	case types.KindPoint:
		if v.Point != nil {
			dto.PointX = v.Point.X
			dto.PointY = v.Point.Y
			dto.PointZ = v.Point.Z
			dto.PointCRS = v.Point.CRS
		}
	}
	return dto
}

func (dto valueDTO) toValue() types.Value {
	switch types.ValueKind(dto.Kind) {
	case types.KindBool:
		return types.NewBool(dto.Bool)
	case types.KindInt:
		return types.NewInt(dto.Int)
	case types.KindFloat:
		return types.NewFloat(dto.Float)
	case types.KindString:
		return types.NewString(dto.Str)
	case types.KindVector:
		return types.NewVector(dto.Vector)
	case types.KindList:
		list := make([]types.Value, len(dto.List))
		for i, e := range dto.List {
			list[i] = e.toValue()
		}
		return types.NewList(list)
	case types.KindMap:
		m := make(map[string]types.Value, len(dto.Map))
		for k, e := range dto.Map {
			m[k] = e.toValue()
		}
		return types.NewMap(m)
	case types.KindPoint:
		return types.NewPoint(&types.Point{X: dto.PointX, Y: dto.PointY, Z: dto.PointZ, CRS: dto.PointCRS})
	default:
		return types.Null
	}
}

func toDTOProps(props map[types.PropertyKeyID]types.Value) map[uint32]valueDTO {
	out := make(map[uint32]valueDTO, len(props))
	for k, v := range props {
		out[uint32(k)] = toDTO(v)
	}
	return out
}

func fromDTOProps(dto map[uint32]valueDTO) map[types.PropertyKeyID]types.Value {
	out := make(map[types.PropertyKeyID]types.Value, len(dto))
	for k, v := range dto {
		out[types.PropertyKeyID(k)] = v.toValue()
	}
	return out
}

// nodeCreatePayload is the WAL tail for EntryNodeCreate (full-overwrite
// semantics: replay always installs the complete node state rather than a
// delta). EntryNodeUpdate carries a labelsPayload instead.
type nodeCreatePayload struct {
	Labels []uint32             `json:"labels"`
	Props  map[uint32]valueDTO `json:"props"`
}

func encodeNodePayload(labels []types.LabelID, props map[types.PropertyKeyID]types.Value) []byte {
	l := make([]uint32, len(labels))
	for i, x := range labels {
		l[i] = uint32(x)
	}
	data, _ := json.Marshal(nodeCreatePayload{Labels: l, Props: toDTOProps(props)})
	return data
}

func decodeNodePayload(data []byte) ([]types.LabelID, map[types.PropertyKeyID]types.Value, error) {
	var p nodeCreatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, err
	}
	labels := make([]types.LabelID, len(p.Labels))
	for i, x := range p.Labels {
		labels[i] = types.LabelID(x)
	}
	return labels, fromDTOProps(p.Props), nil
}

// relCreatePayload is the WAL tail for EntryRelCreate/EntryRelUpdate.
type relCreatePayload struct {
	Type   uint32              `json:"type"`
	Source uint64              `json:"src"`
	Target uint64              `json:"dst"`
	Props  map[uint32]valueDTO `json:"props"`
}

func encodeRelPayload(relType types.RelTypeID, src, dst types.NodeID, props map[types.PropertyKeyID]types.Value) []byte {
	data, _ := json.Marshal(relCreatePayload{
		Type: uint32(relType), Source: uint64(src), Target: uint64(dst), Props: toDTOProps(props),
	})
	return data
}

func decodeRelPayload(data []byte) (types.RelTypeID, types.NodeID, types.NodeID, map[types.PropertyKeyID]types.Value, error) {
	var p relCreatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, 0, 0, nil, err
	}
	return types.RelTypeID(p.Type), types.NodeID(p.Source), types.NodeID(p.Target), fromDTOProps(p.Props), nil
}

// propsPayload is the WAL tail for EntryPropSet (a full property-map
// overwrite, matching GraphStore.SetNodeProperties).
type propsPayload struct {
	Props map[uint32]valueDTO `json:"props"`
}

func encodePropsPayload(props map[types.PropertyKeyID]types.Value) []byte {
	data, _ := json.Marshal(propsPayload{Props: toDTOProps(props)})
	return data
}

func decodePropsPayload(data []byte) (map[types.PropertyKeyID]types.Value, error) {
	var p propsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return fromDTOProps(p.Props), nil
}

// labelsPayload is the WAL tail for a label-set overwrite, used when a
// label change isn't accompanied by a property change (EntryNodeCreate
// covers the combined case).
type labelsPayload struct {
	Labels []uint32 `json:"labels"`
}

func encodeLabelsPayload(labels []types.LabelID) []byte {
	l := make([]uint32, len(labels))
	for i, x := range labels {
		l[i] = uint32(x)
	}
	data, _ := json.Marshal(labelsPayload{Labels: l})
	return data
}

func decodeLabelsPayload(data []byte) ([]types.LabelID, error) {
	var p labelsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	labels := make([]types.LabelID, len(p.Labels))
	for i, x := range p.Labels {
		labels[i] = types.LabelID(x)
	}
	return labels, nil
}
