package index

import (
	"path/filepath"
	"sync"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// entityKey identifies which property indexes apply to a given
// (label-or-reltype, property) pair, so a node/relationship mutation
// can find its relevant indexes without scanning every registered one.
type entityKey struct {
	onRelType bool
	label     types.LabelID
	relType   types.RelTypeID
	property  types.PropertyKeyID
}

// Manager owns every open index structure for one database: the single
// LabelBitmap plus one PropertyIndex or VectorIndex per catalog-registered
// IndexDefinition. It is the thing pkg/txn calls into after each
// mutation so indexes stay synchronously up to date, per spec.md §4.8.
type Manager struct {
	mu      sync.RWMutex
	dir     string
	labels  *LabelBitmap
	props   map[entityKey]*PropertyIndex
	vectors map[entityKey]*VectorIndex
}

// Open loads the label bitmap directory and opens one index structure
// per definition the catalog already has on record, so a restart picks
// back up on already-built indexes without requiring a rebuild.
func Open(dir string, defs []types.IndexDefinition) (*Manager, error) {
	labels, err := OpenLabelBitmap(filepath.Join(dir, "labels"))
	if err != nil {
		return nil, err
	}
	m := &Manager{
		dir:     dir,
		labels:  labels,
		props:   map[entityKey]*PropertyIndex{},
		vectors: map[entityKey]*VectorIndex{},
	}
	for _, def := range defs {
		if err := m.openDefLocked(def); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) keyFor(def types.IndexDefinition) entityKey {
	return entityKey{onRelType: def.OnRelType, label: def.Label, relType: def.RelType, property: def.Property}
}

func (m *Manager) openDefLocked(def types.IndexDefinition) error {
	key := m.keyFor(def)
	switch def.Kind {
	case types.IndexBTreeProperty:
		pi, err := OpenPropertyIndex(m.dir, def.Name)
		if err != nil {
			return err
		}
		m.props[key] = pi
	case types.IndexVectorHNSW:
		m.vectors[key] = NewVectorIndex(def.Dimensions, DistanceCosine, def.M, def.EfConstr, def.EfSearch)
	case types.IndexBitmapLabel:
		// The label bitmap is a single always-open structure, not
		// per-definition; nothing further to open here.
	}
	return nil
}

// CreateIndex opens the backing structure for a newly registered
// definition and builds it over the entities already matching it.
// Callers register the definition with the catalog first (so CREATE
// INDEX is durable even if the build below fails partway) and invoke
// this to perform the synchronous build spec.md §4.8 requires.
func (m *Manager) CreateIndex(def types.IndexDefinition, seed func(insert func(id uint64, value types.Value) error) error) error {
	m.mu.Lock()
	if err := m.openDefLocked(def); err != nil {
		m.mu.Unlock()
		return err
	}
	key := m.keyFor(def)
	pi := m.props[key]
	vi := m.vectors[key]
	m.mu.Unlock()

	if seed == nil {
		return nil
	}
	switch def.Kind {
	case types.IndexBTreeProperty:
		return seed(func(id uint64, value types.Value) error { return pi.Insert(value, id) })
	case types.IndexVectorHNSW:
		return seed(func(id uint64, value types.Value) error {
			if value.Kind != types.KindVector {
				return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeTypeMismatch, "index.Manager.CreateIndex",
					"vector index seed value is not a vector")
			}
			return vi.Insert(types.NodeID(id), value.Vector)
		})
	}
	return nil
}

// Close releases every open btree index's bolt handle. The label bitmap
// and vector indexes hold no file handles beyond what's already fsynced
// on write, so they need no explicit close.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, pi := range m.props {
		if err := pi.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Labels exposes the single label bitmap, for NodeByLabelScan and
// planner cardinality estimates.
func (m *Manager) Labels() *LabelBitmap { return m.labels }

// PropertyIndexFor returns the btree index registered against a
// (label, property) pair, if one exists, for the planner's index-seek
// access path selection.
func (m *Manager) PropertyIndexFor(label types.LabelID, property types.PropertyKeyID) (*PropertyIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pi, ok := m.props[entityKey{label: label, property: property}]
	return pi, ok
}

// VectorIndexFor returns the HNSW index registered against a (label,
// property) pair, if one exists, for vector similarity search.
func (m *Manager) VectorIndexFor(label types.LabelID, property types.PropertyKeyID) (*VectorIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vi, ok := m.vectors[entityKey{label: label, property: property}]
	return vi, ok
}

// OnNodeCreated adds node to every label bitmap it carries and to any
// property/vector index registered for one of those labels with a
// matching property present.
func (m *Manager) OnNodeCreated(id types.NodeID, labels []types.LabelID, props map[types.PropertyKeyID]types.Value) error {
	for _, l := range labels {
		if err := m.labels.Add(l, id); err != nil {
			return err
		}
		if err := m.reindexLabelProps(l, id, nil, props); err != nil {
			return err
		}
	}
	return nil
}

// OnNodeDeleted removes node from every label bitmap and index entry
// it appeared in.
func (m *Manager) OnNodeDeleted(id types.NodeID, labels []types.LabelID, props map[types.PropertyKeyID]types.Value) error {
	for _, l := range labels {
		if err := m.labels.Remove(l, id); err != nil {
			return err
		}
		if err := m.reindexLabelProps(l, id, props, nil); err != nil {
			return err
		}
	}
	return nil
}

// OnNodeLabelsChanged updates the label bitmap and re-evaluates
// property/vector indexes for labels added or removed.
func (m *Manager) OnNodeLabelsChanged(id types.NodeID, oldLabels, newLabels []types.LabelID, props map[types.PropertyKeyID]types.Value) error {
	oldSet := labelSet(oldLabels)
	newSet := labelSet(newLabels)
	for l := range newSet {
		if !oldSet[l] {
			if err := m.labels.Add(l, id); err != nil {
				return err
			}
			if err := m.reindexLabelProps(l, id, nil, props); err != nil {
				return err
			}
		}
	}
	for l := range oldSet {
		if !newSet[l] {
			if err := m.labels.Remove(l, id); err != nil {
				return err
			}
			if err := m.reindexLabelProps(l, id, props, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnNodePropertiesChanged re-evaluates every property/vector index
// registered against any of node's current labels, given the old and
// new property maps.
func (m *Manager) OnNodePropertiesChanged(id types.NodeID, labels []types.LabelID, oldProps, newProps map[types.PropertyKeyID]types.Value) error {
	for _, l := range labels {
		if err := m.reindexLabelProps(l, id, oldProps, newProps); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) reindexLabelProps(label types.LabelID, id types.NodeID, oldProps, newProps map[types.PropertyKeyID]types.Value) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for prop, pi := range m.propsForLabel(label) {
		oldVal, hadOld := oldProps[prop]
		newVal, hasNew := newProps[prop]
		if hadOld && (!hasNew || !oldVal.Equal(newVal)) {
			if err := pi.Remove(oldVal, uint64(id)); err != nil {
				return err
			}
		}
		if hasNew && (!hadOld || !oldVal.Equal(newVal)) {
			if err := pi.Insert(newVal, uint64(id)); err != nil {
				return err
			}
		}
	}
	for prop, vi := range m.vectorsForLabel(label) {
		oldVal, hadOld := oldProps[prop]
		newVal, hasNew := newProps[prop]
		if hadOld && oldVal.Kind == types.KindVector {
			vi.Remove(id)
		}
		if hasNew && newVal.Kind == types.KindVector {
			if err := vi.Insert(id, newVal.Vector); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnRelCreated indexes a newly created relationship's properties
// against any btree index registered on its relationship type.
func (m *Manager) OnRelCreated(id types.RelID, relType types.RelTypeID, props map[types.PropertyKeyID]types.Value) error {
	return m.reindexRelTypeProps(relType, id, nil, props)
}

// OnRelDeleted removes a relationship's index entries.
func (m *Manager) OnRelDeleted(id types.RelID, relType types.RelTypeID, props map[types.PropertyKeyID]types.Value) error {
	return m.reindexRelTypeProps(relType, id, props, nil)
}

func (m *Manager) reindexRelTypeProps(relType types.RelTypeID, id types.RelID, oldProps, newProps map[types.PropertyKeyID]types.Value) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for prop, pi := range m.propsForRelType(relType) {
		oldVal, hadOld := oldProps[prop]
		newVal, hasNew := newProps[prop]
		if hadOld && (!hasNew || !oldVal.Equal(newVal)) {
			if err := pi.Remove(oldVal, uint64(id)); err != nil {
				return err
			}
		}
		if hasNew && (!hadOld || !oldVal.Equal(newVal)) {
			if err := pi.Insert(newVal, uint64(id)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) propsForRelType(relType types.RelTypeID) map[types.PropertyKeyID]*PropertyIndex {
	out := map[types.PropertyKeyID]*PropertyIndex{}
	for k, pi := range m.props {
		if k.onRelType && k.relType == relType {
			out[k.property] = pi
		}
	}
	return out
}

func (m *Manager) propsForLabel(label types.LabelID) map[types.PropertyKeyID]*PropertyIndex {
	out := map[types.PropertyKeyID]*PropertyIndex{}
	for k, pi := range m.props {
		if !k.onRelType && k.label == label {
			out[k.property] = pi
		}
	}
	return out
}

func (m *Manager) vectorsForLabel(label types.LabelID) map[types.PropertyKeyID]*VectorIndex {
	out := map[types.PropertyKeyID]*VectorIndex{}
	for k, vi := range m.vectors {
		if !k.onRelType && k.label == label {
			out[k.property] = vi
		}
	}
	return out
}

func labelSet(labels []types.LabelID) map[types.LabelID]bool {
	s := make(map[types.LabelID]bool, len(labels))
	for _, l := range labels {
		s[l] = true
	}
	return s
}
