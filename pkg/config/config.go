// Package config defines the engine's configuration surface. The engine
// itself never reads files or environment variables — it accepts a
// Config value constructed by the (out-of-scope) peripheral layer. Default
// and Load here build one from defaults or a YAML file; cmd/nexusd and
// tests use them.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ReplicationRole selects master or replica behavior for a database.
type ReplicationRole string

const (
	RoleStandalone ReplicationRole = "standalone"
	RoleMaster     ReplicationRole = "master"
	RoleReplica    ReplicationRole = "replica"
)

// ReplicationMode selects ack-before-commit semantics.
type ReplicationMode string

const (
	ModeAsync ReplicationMode = "async"
	ModeSync  ReplicationMode = "sync"
)

// WALConfig mirrors spec.md §6's wal.* keys.
type WALConfig struct {
	SyncIntervalMs int `yaml:"sync_interval_ms"`
	MaxSizeMB      int `yaml:"max_size_mb"`
}

// HNSWConfig mirrors spec.md §6's indexes.vector.hnsw.* keys.
type HNSWConfig struct {
	M             int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch      int `yaml:"ef_search"`
}

// ReplicationConfig mirrors spec.md §6's replication.* keys.
type ReplicationConfig struct {
	Role              ReplicationRole `yaml:"role"`
	BindAddr          string          `yaml:"bind_addr"`
	MasterAddr        string          `yaml:"master_addr"`
	Mode              ReplicationMode `yaml:"mode"`
	SyncQuorum        int             `yaml:"sync_quorum"`
	HeartbeatMs       int             `yaml:"heartbeat_ms"`
	FailoverTimeoutMs int             `yaml:"failover_timeout_ms"`
	AutoFailover      bool            `yaml:"auto_failover"`
	TLSCertFile       string          `yaml:"tls_cert_file"`
	TLSKeyFile        string          `yaml:"tls_key_file"`
	TLSEnabled        bool            `yaml:"tls_enabled"`
}

// Config is the full engine configuration, per spec.md §6.
type Config struct {
	DataDir         string            `yaml:"data_dir"`
	DefaultDatabase string            `yaml:"default_database"`
	ThreadPoolSize  int               `yaml:"thread_pool_size"`
	CacheSizeMB     int               `yaml:"cache_size_mb"`
	WAL             WALConfig         `yaml:"wal"`
	VectorHNSW      HNSWConfig        `yaml:"indexes_vector_hnsw"`
	Replication     ReplicationConfig `yaml:"replication"`
	MaxExpandDepth  int               `yaml:"max_expand_depth"`
}

// Default returns the configuration used when a caller supplies none,
// matching the defaults called out in spec.md §4.3, §4.8 and §4.9.
func Default() *Config {
	return &Config{
		DataDir:         "./data",
		DefaultDatabase: "default",
		ThreadPoolSize:  8,
		CacheSizeMB:     512,
		WAL: WALConfig{
			SyncIntervalMs: 200,
			MaxSizeMB:      256,
		},
		VectorHNSW: HNSWConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
		},
		Replication: ReplicationConfig{
			Role:              RoleStandalone,
			Mode:              ModeAsync,
			SyncQuorum:        1,
			HeartbeatMs:       5000,
			FailoverTimeoutMs: 15000,
			AutoFailover:      false,
		},
		MaxExpandDepth: 15,
	}
}

// Load reads a YAML config file, overlaying it onto Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
