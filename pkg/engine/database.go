package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nexusdb/nexus/pkg/catalog"
	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/executor"
	"github.com/nexusdb/nexus/pkg/index"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/planner"
	"github.com/nexusdb/nexus/pkg/storage"
	"github.com/nexusdb/nexus/pkg/txn"
	"github.com/nexusdb/nexus/pkg/wal"
)

// database bundles one logical database's open handles: its own storage,
// indexes and WAL live under dataDir/databases/<name>, per spec.md §6's
// persistent layout. The label/relationship-type/property-key dictionary
// is not here — that lives in the engine's single shared Catalog, since
// interned schema ids are global across every database.
type database struct {
	name string
	dir  string

	store *storage.GraphStore
	idx   *index.Manager
	wal   *wal.WAL
	mgr   *txn.Manager
	plan  *planner.Planner
	exec  *executor.Executor
}

func databaseDir(dataDir, name string) string {
	return filepath.Join(dataDir, "databases", name)
}

// openDatabase opens (or creates, if absent) the on-disk stack for one
// database: storage stores, the WAL (replaying it through pkg/txn's
// Recovery sink first), and the index manager seeded from every index
// definition registered in the shared catalog.
func openDatabase(dataDir, name string, cat *catalog.Catalog, cfg *config.Config) (*database, error) {
	dir := databaseDir(dataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "engine.openDatabase", err)
	}

	store, err := storage.Open(filepath.Join(dir, "store"))
	if err != nil {
		return nil, err
	}

	walPath := filepath.Join(dir, "wal.log")
	recovery := txn.NewRecovery(store)
	if _, err := wal.Replay(walPath, 0, recovery); err != nil {
		store.Close()
		return nil, err
	}

	defs, err := cat.ListIndexes()
	if err != nil {
		store.Close()
		return nil, err
	}
	idx, err := index.Open(filepath.Join(dir, "indexes"), defs)
	if err != nil {
		store.Close()
		return nil, err
	}

	w, err := wal.Open(walPath, time.Duration(cfg.WAL.SyncIntervalMs)*time.Millisecond)
	if err != nil {
		store.Close()
		return nil, err
	}

	mgr := txn.NewManager(w, store, idx, recovery.MaxTxnID()+1)
	stats := planner.NewCatalogStats(cat, idx)
	pl := planner.New(stats)
	ex := executor.New(pl)

	log.WithDatabase(name).Info().
		Uint64("recovered_max_txn_id", recovery.MaxTxnID()).
		Msg("database opened")

	return &database{
		name:  name,
		dir:   dir,
		store: store,
		idx:   idx,
		wal:   w,
		mgr:   mgr,
		plan:  pl,
		exec:  ex,
	}, nil
}

// close releases every handle openDatabase acquired. Errors are
// collected but every Close is still attempted, since a failure to
// close one handle shouldn't leak the rest.
func (d *database) close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	record(d.wal.Close())
	record(d.idx.Close())
	record(d.store.Close())
	return first
}
