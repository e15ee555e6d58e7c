package replication

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/engine"
	"github.com/nexusdb/nexus/pkg/events"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// failoverCheckInterval is how often Controller polls a replica's
// MasterDownFor to decide whether auto_failover's timeout has elapsed.
const failoverCheckInterval = time.Second

// Controller owns whichever of Master or Replica is active for the
// engine's configured replication role, and is what Engine.
// SetReplicationController is given — it implements
// engine.ReplicationController. A standalone engine never constructs
// one.
type Controller struct {
	eng *engine.Engine
	cfg *config.Config
	log zerolog.Logger

	mu      sync.Mutex
	master  *Master
	replica *Replica

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Controller for eng under cfg.Replication.Role. Call
// Start to begin listening (master) or connecting (replica).
func New(eng *engine.Engine, cfg *config.Config) *Controller {
	return &Controller{
		eng:    eng,
		cfg:    cfg,
		log:    log.WithComponent("replication"),
		stopCh: make(chan struct{}),
	}
}

// Start brings up the configured role. A standalone role does nothing.
func (c *Controller) Start() error {
	switch c.cfg.Replication.Role {
	case config.RoleMaster:
		return c.startMaster()
	case config.RoleReplica:
		return c.startReplica()
	default:
		return nil
	}
}

// Stop shuts down whichever role is active.
func (c *Controller) Stop() error {
	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.master != nil {
		return c.master.Stop()
	}
	if c.replica != nil {
		return c.replica.Stop()
	}
	return nil
}

func (c *Controller) startMaster() error {
	m, err := NewMaster(c.eng, c.cfg)
	if err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}
	c.mu.Lock()
	c.master = m
	c.mu.Unlock()
	return nil
}

func (c *Controller) startReplica() error {
	rep, err := NewReplica(c.eng, c.cfg)
	if err != nil {
		return err
	}
	if err := rep.Start(); err != nil {
		return err
	}
	c.mu.Lock()
	c.replica = rep
	c.mu.Unlock()

	if c.cfg.Replication.AutoFailover {
		c.wg.Add(1)
		go c.watchFailover(rep)
	}
	return nil
}

// watchFailover polls a replica's time-since-last-contact and
// self-promotes once it exceeds failover_timeout_ms, per spec.md §4.9.
func (c *Controller) watchFailover(rep *Replica) {
	defer c.wg.Done()
	timeout := time.Duration(c.cfg.Replication.FailoverTimeoutMs) * time.Millisecond
	ticker := time.NewTicker(failoverCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if rep.MasterDownFor() > timeout {
				c.log.Warn().Dur("down_for", rep.MasterDownFor()).
					Msg("master unreachable past failover timeout, self-promoting")
				if err := c.PromoteToMaster(); err != nil {
					c.log.Error().Err(err).Msg("auto-failover promotion failed")
				}
				return
			}
		}
	}
}

// Status answers Engine.ReplicationStatus().
func (c *Controller) Status() types.ReplicationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.master != nil:
		offset, replicas := c.master.AggregateAck(c.cfg.DefaultDatabase)
		return types.ReplicationStatus{
			Role:              string(config.RoleMaster),
			ConnectedReplicas: replicas,
			LastAppliedOffset: offset,
		}
	case c.replica != nil:
		return types.ReplicationStatus{
			Role:              string(config.RoleReplica),
			MasterAddr:        c.cfg.Replication.MasterAddr,
			LastAppliedOffset: c.replica.AppliedOffset(),
			LagBytes:          c.replica.LagBytes(),
		}
	default:
		return types.ReplicationStatus{Role: string(config.RoleStandalone)}
	}
}

// PromoteToMaster answers Engine.PromoteToMaster(): a replica stops its
// connection to the old master, opens its own replication listener, and
// refuses writes until that completes (Engine's write path is
// unaffected here — promotion only changes which role's server this
// controller runs, not Engine's own lock semantics).
func (c *Controller) PromoteToMaster() error {
	c.mu.Lock()
	rep := c.replica
	c.mu.Unlock()
	if rep == nil {
		return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeUnsupportedPattern,
			"replication.Controller.PromoteToMaster", "not currently a replica")
	}

	if err := rep.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("error stopping replica during promotion")
	}

	m, err := NewMaster(c.eng, c.cfg)
	if err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}

	c.mu.Lock()
	c.replica = nil
	c.master = m
	c.cfg.Replication.Role = config.RoleMaster
	c.mu.Unlock()

	c.eng.Events().Publish(&events.Event{
		Type:     events.PromotedToMaster,
		Database: c.cfg.DefaultDatabase,
	})
	c.log.Info().Msg("promoted replica to master")
	return nil
}
