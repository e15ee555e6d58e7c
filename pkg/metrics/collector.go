package metrics

import (
	"time"

	"github.com/nexusdb/nexus/pkg/types"
)

// statSource is the slice of Engine a Collector depends on, kept
// narrow so tests can fake it without standing up a full engine.
type statSource interface {
	ListDatabases() ([]string, error)
	Stats(db string) (types.Stats, error)
	ReplicationStatus() types.ReplicationStatus
}

// Collector periodically pulls stats out of an engine and updates the
// gauges in a Registry on a fixed ticker, reading from
// Engine.Stats/ReplicationStatus.
type Collector struct {
	eng             statSource
	reg             *Registry
	defaultDatabase string
	stopCh          chan struct{}
}

// NewCollector creates a metrics collector over eng, publishing into
// reg. defaultDatabase labels the replication gauges, which describe
// the engine as a whole rather than any one database.
func NewCollector(eng statSource, reg *Registry, defaultDatabase string) *Collector {
	return &Collector{
		eng:             eng,
		reg:             reg,
		defaultDatabase: defaultDatabase,
		stopCh:          make(chan struct{}),
	}
}

// Start begins collecting on a 15 second interval, in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectDatabaseMetrics()
	c.collectReplicationMetrics()
}

func (c *Collector) collectDatabaseMetrics() {
	dbs, err := c.eng.ListDatabases()
	if err != nil {
		return
	}

	for _, db := range dbs {
		stats, err := c.eng.Stats(db)
		if err != nil {
			continue
		}
		c.reg.NodesTotal.WithLabelValues(db).Set(float64(stats.NodeCount))
		c.reg.RelationshipsTotal.WithLabelValues(db).Set(float64(stats.RelCount))
		c.reg.StorageBytes.WithLabelValues(db).Set(float64(stats.StorageBytes))
	}
}

func (c *Collector) collectReplicationMetrics() {
	status := c.eng.ReplicationStatus()
	db := c.defaultDatabase

	isMaster := 0.0
	if status.Role == "master" {
		isMaster = 1.0
	}
	c.reg.ReplicationIsMaster.WithLabelValues(db).Set(isMaster)
	c.reg.ReplicationReplicas.WithLabelValues(db).Set(float64(status.ConnectedReplicas))
	c.reg.ReplicationLagBytes.WithLabelValues(db).Set(float64(status.LagBytes))
}
