package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/pkg/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenCreatesDefaultDatabase(t *testing.T) {
	e := testEngine(t)
	names, err := e.ListDatabases()
	require.NoError(t, err)
	require.Contains(t, names, "default")
}

func TestExecuteCypherCreateAndQuery(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.ExecuteCypher(ctx, "default", `CREATE (:Person {name: "alice", age: 30})`, nil, time.Time{})
	require.NoError(t, err)

	res, err := e.ExecuteCypher(ctx, "default", `MATCH (p:Person) RETURN p.name AS name`, nil, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"name"}, res.Columns)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "alice", res.Rows[0][0].Str)
}

func TestExecuteCypherExplainDoesNotMutate(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	res, err := e.ExecuteCypher(ctx, "default", `EXPLAIN CREATE (:Thing)`, nil, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"plan"}, res.Columns)

	stats, err := e.Stats("default")
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.NodeCount)
}

func TestCreateListDropDatabase(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.CreateDatabase("analytics"))
	names, err := e.ListDatabases()
	require.NoError(t, err)
	require.Contains(t, names, "analytics")

	ctx := context.Background()
	_, err = e.ExecuteCypher(ctx, "analytics", `CREATE (:Node)`, nil, time.Time{})
	require.NoError(t, err)

	// Still open (acquired by ExecuteCypher) — dropping must fail.
	err = e.DropDatabase("analytics", false)
	require.Error(t, err)

	require.NoError(t, e.CloseDatabase("analytics"))
	require.NoError(t, e.DropDatabase("analytics", false))

	names, err = e.ListDatabases()
	require.NoError(t, err)
	require.NotContains(t, names, "analytics")
}

func TestDropDatabaseIfExists(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.DropDatabase("nonexistent", true))
	err := e.DropDatabase("nonexistent", false)
	require.Error(t, err)
}

func TestBeginTxnCommit(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	h, err := e.BeginTxn(ctx, "default", true)
	require.NoError(t, err)

	_, err = e.ExecuteTxn(ctx, h, `CREATE (:Person {name: "bob"})`, nil)
	require.NoError(t, err)

	require.NoError(t, e.Commit(h))

	res, err := e.ExecuteCypher(ctx, "default", `MATCH (p:Person) RETURN p.name AS name`, nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestBeginTxnRollback(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	h, err := e.BeginTxn(ctx, "default", true)
	require.NoError(t, err)

	_, err = e.ExecuteTxn(ctx, h, `CREATE (:Person {name: "carol"})`, nil)
	require.NoError(t, err)

	require.NoError(t, e.Rollback(h))

	res, err := e.ExecuteCypher(ctx, "default", `MATCH (p:Person) RETURN count(p) AS total`, nil, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Rows[0][0].Int)
}

func TestReplicationStatusStandaloneByDefault(t *testing.T) {
	e := testEngine(t)
	status := e.ReplicationStatus()
	require.Equal(t, string(config.RoleStandalone), status.Role)

	err := e.PromoteToMaster()
	require.Error(t, err)
}

func TestUseDatabaseClauseOverridesArgument(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateDatabase("other"))
	ctx := context.Background()

	_, err := e.ExecuteCypher(ctx, "default", `USE other CREATE (:Thing)`, nil, time.Time{})
	require.NoError(t, err)

	stats, err := e.Stats("other")
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.NodeCount)

	stats, err = e.Stats("default")
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.NodeCount)
}
