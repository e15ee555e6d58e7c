package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every Nexus metric with the private prometheus
// registry they're registered on — never the package-global
// DefaultRegisterer, so a process embedding the engine never pollutes
// whatever registry it already owns, and multiple engines in the same
// process (as in tests) don't collide registering the same metric name
// twice.
type Registry struct {
	reg *prometheus.Registry

	// Query execution
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	QueryErrorTotal *prometheus.CounterVec

	// Transactions
	TxnsCommitted *prometheus.CounterVec
	TxnsAborted   *prometheus.CounterVec
	TxnConflicts  *prometheus.CounterVec
	TxnDuration   prometheus.Histogram

	// Storage
	NodesTotal       *prometheus.GaugeVec
	RelationshipsTotal *prometheus.GaugeVec
	StorageBytes     *prometheus.GaugeVec

	// WAL
	WALBytesWritten prometheus.Counter
	WALFsyncTotal   prometheus.Counter
	WALSizeBytes    *prometheus.GaugeVec

	// Indexes
	IndexEntriesTotal *prometheus.GaugeVec
	IndexBuildDuration *prometheus.HistogramVec

	// Replication
	ReplicationLagBytes    *prometheus.GaugeVec
	ReplicationReplicas    *prometheus.GaugeVec
	ReplicationIsMaster    *prometheus.GaugeVec
	ReplicationSnapshotXfer prometheus.Counter

	// Checkpoint / recovery
	CheckpointDuration prometheus.Histogram
	RecoveryDuration   prometheus.Histogram
}

// NewRegistry builds a Registry with every metric created and
// registered on a fresh, private prometheus.Registry.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_queries_total",
		Help: "Total number of Cypher queries executed, by database and outcome",
	}, []string{"database", "outcome"})

	r.QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexus_query_duration_seconds",
		Help:    "Cypher query execution time in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"database"})

	r.QueryErrorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_query_errors_total",
		Help: "Total number of Cypher queries that failed, by error kind",
	}, []string{"database", "kind"})

	r.TxnsCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_txns_committed_total",
		Help: "Total number of committed transactions",
	}, []string{"database"})

	r.TxnsAborted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_txns_aborted_total",
		Help: "Total number of aborted transactions",
	}, []string{"database"})

	r.TxnConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_txn_conflicts_total",
		Help: "Total number of write-write conflicts detected at commit",
	}, []string{"database"})

	r.TxnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_txn_duration_seconds",
		Help:    "Transaction lifetime from begin to commit/rollback in seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.NodesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_nodes_total",
		Help: "Total number of live nodes, by database",
	}, []string{"database"})

	r.RelationshipsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_relationships_total",
		Help: "Total number of live relationships, by database",
	}, []string{"database"})

	r.StorageBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_storage_bytes",
		Help: "On-disk size of a database's store files, by database",
	}, []string{"database"})

	r.WALBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_wal_bytes_written_total",
		Help: "Total bytes appended to the WAL",
	})

	r.WALFsyncTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_wal_fsync_total",
		Help: "Total number of WAL fsync calls",
	})

	r.WALSizeBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_wal_size_bytes",
		Help: "Current WAL file size, by database",
	}, []string{"database"})

	r.IndexEntriesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_index_entries_total",
		Help: "Total entries held by an index, by database/index name/kind",
	}, []string{"database", "index", "kind"})

	r.IndexBuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexus_index_build_duration_seconds",
		Help:    "Time taken to build or rebuild an index in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"database", "kind"})

	r.ReplicationLagBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_replication_lag_bytes",
		Help: "Estimated replication lag behind the master's tip, in bytes (replica only)",
	}, []string{"database"})

	r.ReplicationReplicas = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_replication_connected_replicas",
		Help: "Number of replicas currently connected (master only)",
	}, []string{"database"})

	r.ReplicationIsMaster = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexus_replication_is_master",
		Help: "Whether this node currently holds the master role for a database (1) or not (0)",
	}, []string{"database"})

	r.ReplicationSnapshotXfer = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_replication_snapshot_transfers_total",
		Help: "Total number of full snapshot transfers sent to catching-up replicas",
	})

	r.CheckpointDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_checkpoint_duration_seconds",
		Help:    "Time taken to checkpoint the WAL in seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.RecoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_recovery_duration_seconds",
		Help:    "Time taken to replay the WAL during crash recovery in seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.reg.MustRegister(
		r.QueriesTotal, r.QueryDuration, r.QueryErrorTotal,
		r.TxnsCommitted, r.TxnsAborted, r.TxnConflicts, r.TxnDuration,
		r.NodesTotal, r.RelationshipsTotal, r.StorageBytes,
		r.WALBytesWritten, r.WALFsyncTotal, r.WALSizeBytes,
		r.IndexEntriesTotal, r.IndexBuildDuration,
		r.ReplicationLagBytes, r.ReplicationReplicas, r.ReplicationIsMaster, r.ReplicationSnapshotXfer,
		r.CheckpointDuration, r.RecoveryDuration,
	)

	return r
}

// Handler returns the Prometheus HTTP handler for this registry, for a
// caller that wants to mount it; cmd/nexusd serves it on /metrics when
// started with --metrics-addr.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
