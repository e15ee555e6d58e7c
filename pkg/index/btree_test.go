package index

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestPropertyIndexEqualitySeek(t *testing.T) {
	pi, err := OpenPropertyIndex(t.TempDir(), "person_age")
	require.NoError(t, err)
	defer pi.Close()

	require.NoError(t, pi.Insert(types.NewInt(30), 1))
	require.NoError(t, pi.Insert(types.NewInt(30), 2))
	require.NoError(t, pi.Insert(types.NewInt(40), 3))

	ids, err := pi.SeekEqual(types.NewInt(30))
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2}, ids)

	require.NoError(t, pi.Remove(types.NewInt(30), 1))
	ids, err = pi.SeekEqual(types.NewInt(30))
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, ids)
}

func TestPropertyIndexRangeSeek(t *testing.T) {
	pi, err := OpenPropertyIndex(t.TempDir(), "person_age")
	require.NoError(t, err)
	defer pi.Close()

	for i, age := range []int64{10, 20, 30, 40, 50} {
		require.NoError(t, pi.Insert(types.NewInt(age), uint64(i+1)))
	}

	low := types.NewInt(20)
	high := types.NewInt(40)
	ids, err := pi.SeekRange(&low, &high)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3, 4}, ids)

	ids, err = pi.SeekRange(nil, &low)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, ids)
}

func TestPropertyIndexStringOrdering(t *testing.T) {
	pi, err := OpenPropertyIndex(t.TempDir(), "person_name")
	require.NoError(t, err)
	defer pi.Close()

	require.NoError(t, pi.Insert(types.NewString("alice"), 1))
	require.NoError(t, pi.Insert(types.NewString("bob"), 2))
	require.NoError(t, pi.Insert(types.NewString("carol"), 3))

	low := types.NewString("b")
	ids, err := pi.SeekRange(&low, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3}, ids)
}

func TestPropertyIndexNegativeIntOrdering(t *testing.T) {
	pi, err := OpenPropertyIndex(t.TempDir(), "balance")
	require.NoError(t, err)
	defer pi.Close()

	require.NoError(t, pi.Insert(types.NewInt(-100), 1))
	require.NoError(t, pi.Insert(types.NewInt(0), 2))
	require.NoError(t, pi.Insert(types.NewInt(100), 3))

	ids, err := pi.SeekRange(nil, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	zero := types.NewInt(0)
	ids, err = pi.SeekRange(nil, &zero)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, ids)
}
