package storage

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestCreateReadDeleteNode(t *testing.T) {
	gs, err := Open(t.TempDir())
	require.NoError(t, err)
	defer gs.Close()

	props := map[types.PropertyKeyID]types.Value{
		1: types.NewString("alice"),
		2: types.NewInt(30),
	}
	n, err := gs.CreateNode([]types.LabelID{1}, props)
	require.NoError(t, err)

	got, err := gs.ReadNode(n.ID)
	require.NoError(t, err)
	require.Equal(t, []types.LabelID{1}, got.Labels)
	require.Equal(t, "alice", got.Properties[1].Str)
	require.Equal(t, int64(30), got.Properties[2].Int)

	require.NoError(t, gs.DeleteNode(n.ID))
	_, err = gs.ReadNode(n.ID)
	require.Error(t, err)
}

func TestCreateRelationshipAdjacency(t *testing.T) {
	gs, err := Open(t.TempDir())
	require.NoError(t, err)
	defer gs.Close()

	a, err := gs.CreateNode(nil, nil)
	require.NoError(t, err)
	b, err := gs.CreateNode(nil, nil)
	require.NoError(t, err)
	c, err := gs.CreateNode(nil, nil)
	require.NoError(t, err)

	r1, err := gs.CreateRelationship(10, a.ID, b.ID, nil)
	require.NoError(t, err)
	r2, err := gs.CreateRelationship(10, a.ID, c.ID, nil)
	require.NoError(t, err)

	heads, err := gs.NodeAdjacencyHeads(a.ID)
	require.NoError(t, err)
	outs, err := gs.RelationshipsFrom(heads, types.DirOutgoing)
	require.NoError(t, err)
	require.ElementsMatch(t, []types.RelID{r1.ID, r2.ID}, outs)

	require.NoError(t, gs.DeleteRelationship(r1.ID))
	heads, err = gs.NodeAdjacencyHeads(a.ID)
	require.NoError(t, err)
	outs, err = gs.RelationshipsFrom(heads, types.DirOutgoing)
	require.NoError(t, err)
	require.Equal(t, []types.RelID{r2.ID}, outs)
}

func TestSetNodePropertiesReplacesChain(t *testing.T) {
	gs, err := Open(t.TempDir())
	require.NoError(t, err)
	defer gs.Close()

	n, err := gs.CreateNode(nil, map[types.PropertyKeyID]types.Value{1: types.NewInt(1)})
	require.NoError(t, err)

	require.NoError(t, gs.SetNodeProperties(n.ID, map[types.PropertyKeyID]types.Value{2: types.NewBool(true)}))

	got, err := gs.ReadNode(n.ID)
	require.NoError(t, err)
	require.Len(t, got.Properties, 1)
	require.True(t, got.Properties[2].Bool)
}

func TestLongStringOverflow(t *testing.T) {
	gs, err := Open(t.TempDir())
	require.NoError(t, err)
	defer gs.Close()

	long := make([]byte, 5000)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	n, err := gs.CreateNode(nil, map[types.PropertyKeyID]types.Value{1: types.NewString(string(long))})
	require.NoError(t, err)

	got, err := gs.ReadNode(n.ID)
	require.NoError(t, err)
	require.Equal(t, string(long), got.Properties[1].Str)
}

func TestSetNodeLabels(t *testing.T) {
	gs, err := Open(t.TempDir())
	require.NoError(t, err)
	defer gs.Close()

	n, err := gs.CreateNode([]types.LabelID{1}, nil)
	require.NoError(t, err)

	require.NoError(t, gs.SetNodeLabels(n.ID, []types.LabelID{1, 2, 3}))
	labels, err := gs.NodeLabels(n.ID)
	require.NoError(t, err)
	require.Equal(t, []types.LabelID{1, 2, 3}, labels)
}

func TestVectorPropertyRoundtrip(t *testing.T) {
	gs, err := Open(t.TempDir())
	require.NoError(t, err)
	defer gs.Close()

	vec := []float32{0.1, 0.2, 0.3, -1.5}
	n, err := gs.CreateNode(nil, map[types.PropertyKeyID]types.Value{1: types.NewVector(vec)})
	require.NoError(t, err)

	got, err := gs.ReadNode(n.ID)
	require.NoError(t, err)
	require.Equal(t, vec, got.Properties[1].Vector)
}
