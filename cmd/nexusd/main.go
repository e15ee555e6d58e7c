// Command nexusd is the Nexus graph database daemon: it opens the engine
// over a data directory, starts replication if configured, and serves
// until signaled to stop.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/engine"
	"github.com/nexusdb/nexus/pkg/events"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/metrics"
	"github.com/nexusdb/nexus/pkg/replication"
	"github.com/nexusdb/nexus/pkg/security"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nexusd",
	Short: "Nexus - a Cypher-compatible embedded graph database",
	Long: `Nexus is a single-binary graph database that speaks a subset of
Cypher, with a crash-safe write-ahead log and master-replica
replication for read scaling and failover.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"nexusd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(certCmd)
	certCmd.AddCommand(certInitCmd)
	certInitCmd.Flags().String("cert-dir", "", "Directory to write the CA and node certificate into (default: derived from --role/--node-id under the user's home directory)")
	certInitCmd.Flags().String("node-id", "node-1", "Unique node id to embed in the issued certificate")
	certInitCmd.Flags().String("role", "master", "Node role to embed in the issued certificate (master or replica)")
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage the replication TLS certificate authority",
	Long: `pkg/replication defaults to a single shared certificate as its
own trust anchor (replication.tls_cert_file/tls_key_file). cert init is
the upgrade path: it bootstraps a standalone root CA once and issues a
distinct, short-lived certificate per node from it, so a replica's key
compromise doesn't also compromise the master's.`,
}

var certInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a CA (if needed) and issue a node certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		certDir, _ := cmd.Flags().GetString("cert-dir")
		nodeID, _ := cmd.Flags().GetString("node-id")
		role, _ := cmd.Flags().GetString("role")
		if certDir == "" {
			var err error
			certDir, err = security.GetCertDir(role, nodeID)
			if err != nil {
				return fmt.Errorf("failed to resolve cert directory: %w", err)
			}
		}

		ca := security.NewCertAuthority()
		if security.CertExists(certDir) {
			if err := ca.LoadFromFiles(certDir); err != nil {
				return fmt.Errorf("failed to load existing CA: %w", err)
			}
			fmt.Printf("✓ Loaded existing CA from %s\n", certDir)
		} else {
			if err := ca.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize CA: %w", err)
			}
			if err := ca.SaveToFiles(certDir); err != nil {
				return fmt.Errorf("failed to save CA: %w", err)
			}
			fmt.Printf("✓ Bootstrapped new CA in %s\n", certDir)
		}

		nodeCert, err := ca.IssueNodeCertificate(nodeID, role, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to issue node certificate: %w", err)
		}
		if err := security.SaveCertToFile(nodeCert, certDir); err != nil {
			return fmt.Errorf("failed to save node certificate: %w", err)
		}

		fmt.Printf("✓ Issued certificate for node %q (role: %s)\n", nodeID, role)
		fmt.Printf("  Certificate directory: %s\n", certDir)
		fmt.Println("Set replication.tls_cert_file/tls_key_file to node.crt/node.key in that directory.")
		return nil
	},
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open a database directory and serve until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg := config.Default()
		if configPath != "" {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		fmt.Println("Starting nexusd...")
		fmt.Printf("  Data Directory: %s\n", cfg.DataDir)
		fmt.Printf("  Default Database: %s\n", cfg.DefaultDatabase)
		fmt.Printf("  Replication Role: %s\n", cfg.Replication.Role)
		fmt.Println()

		eng, err := engine.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open engine: %v", err)
		}
		defer eng.Close()
		fmt.Println("✓ Engine opened")

		sub := eng.Events().Subscribe()
		defer eng.Events().Unsubscribe(sub)
		go logEvents(sub)

		var ctrl *replication.Controller
		if cfg.Replication.Role != config.RoleStandalone {
			ctrl = replication.New(eng, cfg)
			if err := ctrl.Start(); err != nil {
				return fmt.Errorf("failed to start replication: %v", err)
			}
			defer ctrl.Stop()
			eng.SetReplicationController(ctrl)
			fmt.Printf("✓ Replication started (role: %s)\n", cfg.Replication.Role)
		}

		reg := metrics.NewRegistry()
		collector := metrics.NewCollector(eng, reg, cfg.DefaultDatabase)
		collector.Start()
		defer collector.Stop()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", reg.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
				}
			}()
			defer srv.Close()
			fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
		}

		fmt.Println()
		fmt.Println("nexusd is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		return nil
	},
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("nexusd")
	for ev := range sub {
		logger.Info().Str("type", string(ev.Type)).Str("database", ev.Database).Msg("event")
	}
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
}
