package catalog

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/stretchr/testify/require"
)

func idxDef(name string, label types.LabelID, key types.PropertyKeyID) types.IndexDefinition {
	return types.IndexDefinition{Name: name, Kind: types.IndexBTreeProperty, Label: label, Property: key}
}

func TestLabelInterning(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	id1, err := c.GetOrCreateLabel("Person")
	require.NoError(t, err)
	id2, err := c.GetOrCreateLabel("Person")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := c.GetOrCreateLabel("Movie")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)

	name, err := c.LabelName(id1)
	require.NoError(t, err)
	require.Equal(t, "Person", name)
}

func TestInvalidNameRejected(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetOrCreateLabel("1Bad")
	require.Error(t, err)
	code, ok := nexuserr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, nexuserr.CodeInvalidName, code)
}

func TestIndexRegistryRoundtrip(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	label, err := c.GetOrCreateLabel("Person")
	require.NoError(t, err)
	key, err := c.GetOrCreatePropertyKey("name")
	require.NoError(t, err)

	require.NoError(t, c.RegisterIndex(idxDef("person_name", label, key)))
	_, err = c.GetIndex("person_name")
	require.NoError(t, err)

	err = c.RegisterIndex(idxDef("person_name", label, key))
	require.Error(t, err)

	list, err := c.IndexesForLabel(label)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DropIndex("person_name"))
	_, err = c.GetIndex("person_name")
	require.Error(t, err)
}

func TestDatabaseRegistryAndInUseGuard(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CreateDatabase("graph1"))
	err = c.CreateDatabase("graph1")
	require.Error(t, err)

	names, err := c.ListDatabases()
	require.NoError(t, err)
	require.Contains(t, names, "graph1")

	c.AcquireDatabase("graph1")
	err = c.DropDatabase("graph1")
	require.Error(t, err)
	code, _ := nexuserr.CodeOf(err)
	require.Equal(t, nexuserr.CodeDatabaseInUse, code)

	c.ReleaseDatabase("graph1")
	require.NoError(t, c.DropDatabase("graph1"))
}

func TestSchemaVersionBumpsOnLabelAndIndexChanges(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	v0, err := c.SchemaVersion()
	require.NoError(t, err)

	label, err := c.GetOrCreateLabel("Person")
	require.NoError(t, err)
	v1, err := c.SchemaVersion()
	require.NoError(t, err)
	require.Greater(t, v1, v0)

	key, err := c.GetOrCreatePropertyKey("name")
	require.NoError(t, err)
	v2, err := c.SchemaVersion()
	require.NoError(t, err)

	require.NoError(t, c.RegisterIndex(idxDef("person_name", label, key)))
	v3, err := c.SchemaVersion()
	require.NoError(t, err)
	require.Greater(t, v3, v2)
}
