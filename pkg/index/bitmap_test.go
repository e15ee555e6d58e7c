package index

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestLabelBitmapAddRemove(t *testing.T) {
	lb, err := OpenLabelBitmap(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, lb.Add(1, 100))
	require.NoError(t, lb.Add(1, 200))
	require.NoError(t, lb.Add(2, 100))

	require.ElementsMatch(t, []types.NodeID{100, 200}, lb.Nodes(1))
	require.Equal(t, uint64(2), lb.Count(1))
	require.True(t, lb.Has(1, 100))
	require.False(t, lb.Has(2, 200))

	require.NoError(t, lb.Remove(1, 100))
	require.ElementsMatch(t, []types.NodeID{200}, lb.Nodes(1))
}

func TestLabelBitmapPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	lb, err := OpenLabelBitmap(dir)
	require.NoError(t, err)
	require.NoError(t, lb.Add(3, 42))

	reopened, err := OpenLabelBitmap(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []types.NodeID{42}, reopened.Nodes(3))
}
