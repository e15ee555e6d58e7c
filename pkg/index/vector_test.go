package index

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexInsertAndSearch(t *testing.T) {
	vi := NewVectorIndex(3, DistanceEuclidean, 0, 0, 0)

	require.NoError(t, vi.Insert(1, []float32{0, 0, 0}))
	require.NoError(t, vi.Insert(2, []float32{10, 10, 10}))
	require.NoError(t, vi.Insert(3, []float32{0.1, 0.1, 0.1}))
	require.NoError(t, vi.Insert(4, []float32{9.9, 9.9, 9.9}))

	ids, err := vi.Search([]float32{0, 0, 0}, 2)
	require.NoError(t, err)
	require.ElementsMatch(t, []types.NodeID{1, 3}, ids)

	ids, err = vi.Search([]float32{10, 10, 10}, 2)
	require.NoError(t, err)
	require.ElementsMatch(t, []types.NodeID{2, 4}, ids)
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	vi := NewVectorIndex(3, DistanceCosine, 0, 0, 0)
	require.NoError(t, vi.Insert(1, []float32{1, 0, 0}))

	err := vi.Insert(2, []float32{1, 0})
	require.Error(t, err)
	code, ok := nexuserr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, nexuserr.CodeVectorDimensionMismatch, code)

	_, err = vi.Search([]float32{1, 1}, 1)
	require.Error(t, err)
	code, ok = nexuserr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, nexuserr.CodeVectorDimensionMismatch, code)
}

func TestVectorIndexRemove(t *testing.T) {
	vi := NewVectorIndex(2, DistanceEuclidean, 0, 0, 0)
	require.NoError(t, vi.Insert(1, []float32{0, 0}))
	require.NoError(t, vi.Insert(2, []float32{1, 1}))
	require.NoError(t, vi.Insert(3, []float32{5, 5}))

	vi.Remove(2)

	ids, err := vi.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.NotContains(t, ids, types.NodeID(2))
	require.ElementsMatch(t, []types.NodeID{1, 3}, ids)
}

func TestVectorIndexCosineDistance(t *testing.T) {
	vi := NewVectorIndex(2, DistanceCosine, 0, 0, 0)
	require.NoError(t, vi.Insert(1, []float32{1, 0}))
	require.NoError(t, vi.Insert(2, []float32{0, 1}))
	require.NoError(t, vi.Insert(3, []float32{2, 0}))

	ids, err := vi.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Contains(t, []types.NodeID{1, 3}, ids[0])
}

func TestVectorIndexSearchEmpty(t *testing.T) {
	vi := NewVectorIndex(2, DistanceEuclidean, 0, 0, 0)
	ids, err := vi.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, ids)
}
