// Package engine is Nexus's top-level wiring: it owns the single shared
// Catalog (label/relationship-type/property-key dictionary plus the
// multi-database registry), opens and closes each database's own
// storage/WAL/index/planner/executor stack on demand, and exposes the
// engine contract spec.md §6 describes to the (out-of-scope) HTTP API:
// execute_cypher, begin_txn/commit/rollback, stats, create_database/
// drop_database/list_databases, replication_status/promote_to_master.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nexusdb/nexus/pkg/catalog"
	"github.com/nexusdb/nexus/pkg/config"
	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/cypher/parser"
	"github.com/nexusdb/nexus/pkg/events"
	"github.com/nexusdb/nexus/pkg/executor"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/procedure"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/rs/zerolog"
)

// Config is an alias for pkg/config's engine configuration, re-exported
// here so callers that only import pkg/engine don't need a second import
// just to build one.
type Config = config.Config

// ReplicationController is the narrow seam pkg/replication implements
// against: Engine calls into it for replication_status()/promote_to_master()
// once a replication.role other than standalone is configured. It stays
// nil (and Engine answers with a static standalone status) until
// SetReplicationController is called, so Engine itself never imports
// pkg/replication and the two packages don't cycle.
type ReplicationController interface {
	Status() types.ReplicationStatus
	PromoteToMaster() error
}

// Engine is the process-wide handle spec.md §6 calls "the core": one
// shared Catalog, a registry of currently-open per-database stacks, and
// the procedure table every database's executor dispatches CALL into.
type Engine struct {
	cfg *config.Config
	cat *catalog.Catalog

	mu        sync.RWMutex
	databases map[string]*database

	procedures map[string]executor.ProcedureFunc

	sessMu sync.Mutex
	sess   map[string]*openTxn

	repl ReplicationController

	events *events.Broker

	log zerolog.Logger
}

// Events returns the engine's event broker, so a caller can subscribe
// to database and replication lifecycle notifications.
func (e *Engine) Events() *events.Broker {
	return e.events
}

// Open wires a new Engine over cfg.DataDir: it opens the shared catalog,
// then opens (creating if absent) the default database so the engine is
// immediately ready to execute queries against it.
func Open(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "engine.Open", err)
	}

	cat, err := catalog.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		cat:        cat,
		databases:  map[string]*database{},
		procedures: procedure.New().Funcs(),
		sess:       map[string]*openTxn{},
		events:     events.NewBroker(),
		log:        log.WithComponent("engine"),
	}
	e.events.Start()

	if _, err := e.acquireDatabase(cfg.DefaultDatabase); err != nil {
		cat.Close()
		return nil, err
	}

	return e, nil
}

// SetReplicationController wires a started master/replica controller
// into the engine. Safe to call once, before traffic starts.
func (e *Engine) SetReplicationController(rc ReplicationController) {
	e.mu.Lock()
	e.repl = rc
	e.mu.Unlock()
}

// Close shuts down every open database stack and the shared catalog.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var first error
	for name, db := range e.databases {
		if err := db.close(); err != nil && first == nil {
			first = err
		}
		e.cat.ReleaseDatabase(name)
	}
	e.databases = map[string]*database{}

	if err := e.cat.Close(); err != nil && first == nil {
		first = err
	}
	e.events.Stop()
	return first
}

// acquireDatabase returns the already-open stack for name, opening it
// (and marking it acquired in the shared catalog's tracker) on first use.
func (e *Engine) acquireDatabase(name string) (*database, error) {
	e.mu.RLock()
	db, ok := e.databases[name]
	e.mu.RUnlock()
	if ok {
		return db, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.databases[name]; ok {
		return db, nil
	}

	if _, err := e.cat.GetDatabase(name); err != nil {
		if name != e.cfg.DefaultDatabase {
			return nil, err
		}
		// The default database is implicit — register it on first boot
		// rather than requiring an explicit CreateDatabase call.
		if err := e.cat.CreateDatabase(name); err != nil {
			return nil, err
		}
	}

	db, err := openDatabase(e.cfg.DataDir, name, e.cat, e.cfg)
	if err != nil {
		return nil, err
	}
	e.cat.AcquireDatabase(name)
	e.databases[name] = db
	e.events.Publish(&events.Event{Type: events.DatabaseOpened, Database: name})
	return db, nil
}

// CreateDatabase registers name and opens its storage directory, per
// spec.md §6's create_database(name).
func (e *Engine) CreateDatabase(name string) error {
	if err := e.cat.CreateDatabase(name); err != nil {
		return err
	}
	dir := databaseDir(e.cfg.DataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nexuserr.Wrap(nexuserr.KindStorage, nexuserr.CodeStorageIO, "engine.CreateDatabase", err)
	}
	e.events.Publish(&events.Event{Type: events.DatabaseCreated, Database: name})
	return nil
}

// DropDatabase deregisters name and removes its storage directory. It
// must already be closed (DropDatabase fails with CodeDatabaseInUse
// through the catalog's tracker if a stack is still open); ifExists
// swallows a CodeNotFound instead of returning it.
func (e *Engine) DropDatabase(name string, ifExists bool) error {
	e.mu.RLock()
	_, open := e.databases[name]
	e.mu.RUnlock()
	if open {
		return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeDatabaseInUse, "engine.DropDatabase",
			"database is currently open: "+name)
	}

	if err := e.cat.DropDatabase(name); err != nil {
		if code, ok := nexuserr.CodeOf(err); ifExists && ok && code == nexuserr.CodeNotFound {
			return nil
		}
		return err
	}
	e.events.Publish(&events.Event{Type: events.DatabaseDropped, Database: name})
	return os.RemoveAll(databaseDir(e.cfg.DataDir, name))
}

// ListDatabases returns every registered database name.
func (e *Engine) ListDatabases() ([]string, error) {
	return e.cat.ListDatabases()
}

// CloseDatabase closes name's open stack, if any, releasing it in the
// shared catalog's in-use tracker so DropDatabase can proceed.
func (e *Engine) CloseDatabase(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	db, ok := e.databases[name]
	if !ok {
		return nil
	}
	delete(e.databases, name)
	e.cat.ReleaseDatabase(name)
	e.events.Publish(&events.Event{Type: events.DatabaseClosed, Database: name})
	return db.close()
}

// Stats answers spec.md §6's stats(db).
func (e *Engine) Stats(db string) (types.Stats, error) {
	d, err := e.acquireDatabase(db)
	if err != nil {
		return types.Stats{}, err
	}
	labels, err := e.cat.Labels()
	if err != nil {
		return types.Stats{}, err
	}
	relTypes, err := e.cat.RelTypes()
	if err != nil {
		return types.Stats{}, err
	}
	propKeys, err := e.cat.PropertyKeys()
	if err != nil {
		return types.Stats{}, err
	}
	indexes, err := e.cat.ListIndexes()
	if err != nil {
		return types.Stats{}, err
	}

	var storageBytes int64
	_ = filepath.Walk(d.dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			storageBytes += info.Size()
		}
		return nil
	})

	return types.Stats{
		NodeCount:        d.store.NodeCount(),
		RelCount:         d.store.RelCount(),
		LabelCount:       len(labels),
		RelTypeCount:     len(relTypes),
		PropertyKeyCount: len(propKeys),
		IndexCount:       len(indexes),
		StorageBytes:     storageBytes,
		CollectedAt:      time.Now(),
	}, nil
}

// ReplicationStatus answers spec.md §6's replication_status(). With no
// controller wired in, the engine reports standalone per cfg.Replication.
func (e *Engine) ReplicationStatus() types.ReplicationStatus {
	e.mu.RLock()
	rc := e.repl
	e.mu.RUnlock()
	if rc != nil {
		return rc.Status()
	}
	return types.ReplicationStatus{
		Role:       string(e.cfg.Replication.Role),
		MasterAddr: e.cfg.Replication.MasterAddr,
	}
}

// PromoteToMaster answers spec.md §6's promote_to_master(), delegating to
// the wired ReplicationController. Returns CodeUnsupportedPattern if none
// is configured — promotion is meaningless on a standalone engine.
func (e *Engine) PromoteToMaster() error {
	e.mu.RLock()
	rc := e.repl
	e.mu.RUnlock()
	if rc == nil {
		return nexuserr.New(nexuserr.KindReplication, nexuserr.CodeUnsupportedPattern, "engine.PromoteToMaster",
			"no replication controller configured")
	}
	return rc.PromoteToMaster()
}

// ExecuteCypher parses src once to resolve a USE DATABASE override and
// classify it as a read or write, begins an auto-commit transaction
// against the resolved database, executes through that database's
// Executor, and commits (or rolls back on error) before returning, per
// spec.md §6's execute_cypher(db, query, params, deadline).
func (e *Engine) ExecuteCypher(ctx context.Context, db, src string, params map[string]types.Value, deadline time.Time) (*types.QueryResult, error) {
	q, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	if q.UseDatabase != "" {
		db = q.UseDatabase
	}

	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	d, err := e.acquireDatabase(db)
	if err != nil {
		return nil, err
	}

	writable := isWriteQuery(q) && !q.Explain
	t, err := d.mgr.Begin(ctx, writable)
	if err != nil {
		return nil, err
	}

	res, err := d.exec.Run(ctx, src, t, e.cat, params, e.procedures)
	if err != nil {
		t.Rollback()
		return nil, err
	}
	if writable {
		if err := t.Commit(); err != nil {
			return nil, err
		}
	} else {
		t.Rollback()
	}
	return res, nil
}

// Explain returns the textual physical plan for src against db, without
// executing it.
func (e *Engine) Explain(db, src string) (string, error) {
	d, err := e.acquireDatabase(db)
	if err != nil {
		return "", err
	}
	return d.exec.Explain(src)
}

// isWriteQuery reports whether q (or any query it's UNIONed with)
// contains a clause that mutates the graph, so ExecuteCypher knows
// whether to begin a writable or read-only auto-commit transaction.
func isWriteQuery(q *ast.Query) bool {
	for q != nil {
		for _, c := range q.Clauses {
			switch c.(type) {
			case *ast.CreateClause, *ast.SetClause, *ast.RemoveClause, *ast.DeleteClause, *ast.MergeClause:
				return true
			}
		}
		if q.Union == nil {
			break
		}
		q = q.Union.Query
	}
	return false
}
