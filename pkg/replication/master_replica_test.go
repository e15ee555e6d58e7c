package replication

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/engine"
)

// freeAddr picks a loopback address that is very likely free at the
// moment this test binds the real listener a moment later.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testEngineWithRole(t *testing.T, role config.ReplicationRole, addr, masterAddr string) (*engine.Engine, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Replication.Role = role
	cfg.Replication.BindAddr = addr
	cfg.Replication.MasterAddr = masterAddr
	cfg.Replication.HeartbeatMs = 200
	eng, err := engine.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, cfg
}

// TestMasterReplicaStreamsWrites drives a real master/replica pair over
// a loopback TCP connection: writes committed against the master's
// engine must show up in the replica's engine shortly after, streamed
// through the wire protocol rather than shared storage.
func TestMasterReplicaStreamsWrites(t *testing.T) {
	addr := freeAddr(t)

	masterEng, masterCfg := testEngineWithRole(t, config.RoleMaster, addr, "")
	master, err := NewMaster(masterEng, masterCfg)
	require.NoError(t, err)
	require.NoError(t, master.Start())
	t.Cleanup(func() { _ = master.Stop() })

	replicaEng, replicaCfg := testEngineWithRole(t, config.RoleReplica, "", addr)
	replica, err := NewReplica(replicaEng, replicaCfg)
	require.NoError(t, err)
	require.NoError(t, replica.Start())
	t.Cleanup(func() { _ = replica.Stop() })

	ctx := context.Background()
	_, err = masterEng.ExecuteCypher(ctx, "default", `CREATE (:Person {name: "ada"})`, nil, time.Time{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := replicaEng.ExecuteCypher(ctx, "default", `MATCH (p:Person) RETURN p.name AS name`, nil, time.Time{})
		if err != nil || len(res.Rows) == 0 {
			return false
		}
		return res.Rows[0][0].Str == "ada"
	}, 5*time.Second, 50*time.Millisecond, "replica never applied the master's write")

	require.Eventually(t, func() bool {
		return master.ConnectedReplicas() == 1
	}, 5*time.Second, 50*time.Millisecond, "master never registered the replica")
}

func TestControllerStatusStandalone(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng, err := engine.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctrl := New(eng, cfg)
	status := ctrl.Status()
	require.Equal(t, string(config.RoleStandalone), status.Role)
}

func TestControllerPromoteToMasterFailsWhenNotAReplica(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng, err := engine.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctrl := New(eng, cfg)
	err = ctrl.PromoteToMaster()
	require.Error(t, err)
}
