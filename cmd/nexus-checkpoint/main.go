// Command nexus-checkpoint is an offline WAL maintenance tool: it forces
// a checkpoint against a database's write-ahead log and truncates the
// entries that checkpoint makes irrelevant to recovery, shrinking the
// WAL file on disk. It must only be run against a data directory whose
// engine process is stopped.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/pkg/wal"
)

var (
	dataDir  = flag.String("data-dir", "./data", "Nexus data directory")
	database = flag.String("database", "", "Database name to checkpoint (default: all databases)")
	dryRun   = flag.Bool("dry-run", false, "Report what would be checkpointed without making changes")
	backup   = flag.Bool("backup", true, "Back up each WAL file before truncating it")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Nexus WAL Checkpoint Tool")
	log.Println("=========================")

	catalogPath := filepath.Join(*dataDir, "catalog.db")
	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		log.Fatalf("Catalog not found at %s", catalogPath)
	}

	names, err := listDatabases(catalogPath)
	if err != nil {
		log.Fatalf("Failed to read catalog: %v", err)
	}
	if *database != "" {
		names = filterNames(names, *database)
		if len(names) == 0 {
			log.Fatalf("Database %q not found in catalog", *database)
		}
	}

	log.Printf("Data directory: %s", *dataDir)
	log.Printf("Databases: %v", names)
	log.Printf("Dry run: %v", *dryRun)

	for _, name := range names {
		if err := checkpointDatabase(*dataDir, name); err != nil {
			log.Fatalf("Checkpoint failed for %q: %v", name, err)
		}
	}

	log.Println("\n✓ Checkpoint run completed successfully!")
}

// listDatabases reads the database bucket directly with bbolt, so this
// tool never needs to link the catalog package's schema types for what
// is ultimately just the list of subdirectory names.
func listDatabases(catalogPath string) ([]string, error) {
	db, err := bolt.Open(catalogPath, 0o600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var names []string
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("databases"))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func filterNames(names []string, want string) []string {
	for _, n := range names {
		if n == want {
			return []string{n}
		}
	}
	return nil
}

func checkpointDatabase(dataDir, name string) error {
	walPath := filepath.Join(dataDir, "databases", name, "wal.log")
	if _, err := os.Stat(walPath); os.IsNotExist(err) {
		log.Printf("  [%s] no WAL file, skipping", name)
		return nil
	}

	if *backup && !*dryRun {
		backupPath := walPath + ".backup"
		log.Printf("  [%s] backing up WAL to %s", name, backupPath)
		if err := copyFile(walPath, backupPath); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	w, err := wal.Open(walPath, 0)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer w.Close()

	durableOffset := w.Offset()
	if durableOffset == 0 {
		log.Printf("  [%s] WAL is empty, nothing to checkpoint", name)
		return nil
	}

	log.Printf("  [%s] durable offset: %d bytes", name, durableOffset)
	if *dryRun {
		log.Printf("  [%s] [DRY RUN] would append a checkpoint entry and truncate everything before it", name)
		return nil
	}

	if _, err := w.Append(wal.EntryCheckpoint, wal.EncodeCheckpoint(durableOffset)); err != nil {
		return fmt.Errorf("append checkpoint entry: %w", err)
	}
	if err := w.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.Truncate(durableOffset); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	log.Printf("  [%s] ✓ checkpointed, WAL pruned up to offset %d", name, durableOffset)
	return nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
