package catalog

import (
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/pkg/nexuserr"
)

// databaseRecord is the persisted registry entry for one logical database.
// Each database's graph lives in its own data subdirectory named after it;
// the Catalog only tracks existence, not the open storage handles — that
// lifecycle belongs to pkg/engine.
type databaseRecord struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// openTracker tracks names currently attached by an engine (i.e. with
// live storage/WAL/index handles), so DropDatabase can refuse to remove
// one still in use per spec.md's DatabaseInUse error.
type openTracker struct {
	mu   sync.Mutex
	open map[string]int
}

func newOpenTracker() *openTracker { return &openTracker{open: map[string]int{}} }

func (t *openTracker) acquire(name string) {
	t.mu.Lock()
	t.open[name]++
	t.mu.Unlock()
}

func (t *openTracker) release(name string) {
	t.mu.Lock()
	if t.open[name] > 0 {
		t.open[name]--
	}
	t.mu.Unlock()
}

func (t *openTracker) inUse(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[name] > 0
}

// CreateDatabase registers a new database name. It does not create the
// database's storage directory; pkg/engine does that after this succeeds,
// since directory layout is an engine concern, not a catalog one.
func (c *Catalog) CreateDatabase(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	rec := databaseRecord{Name: name, CreatedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.CreateDatabase", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDatabases)
		if b.Get([]byte(name)) != nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeAlreadyExists, "catalog.CreateDatabase",
				"database already exists: "+name)
		}
		return b.Put([]byte(name), data)
	})
	if err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			return e
		}
		return nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.CreateDatabase", err)
	}
	return nil
}

// DropDatabase deregisters a database name. c.tracker must report it not
// currently open, per spec.md's DatabaseInUse invariant.
func (c *Catalog) DropDatabase(name string) error {
	if c.tracker.inUse(name) {
		return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeDatabaseInUse, "catalog.DropDatabase",
			"database is currently open: "+name)
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDatabases)
		if b.Get([]byte(name)) == nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeNotFound, "catalog.DropDatabase",
				"no such database: "+name)
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			return e
		}
		return nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.DropDatabase", err)
	}
	return nil
}

// ListDatabases returns every registered database name.
func (c *Catalog) ListDatabases() ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDatabases).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.ListDatabases", err)
	}
	return names, nil
}

// GetDatabase returns a single database's registry entry.
func (c *Catalog) GetDatabase(name string) (createdAt time.Time, err error) {
	var rec databaseRecord
	verr := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDatabases).Get([]byte(name))
		if v == nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeNotFound, "catalog.GetDatabase",
				"no such database: "+name)
		}
		return json.Unmarshal(v, &rec)
	})
	if verr != nil {
		if e, ok := verr.(*nexuserr.Error); ok {
			return time.Time{}, e
		}
		return time.Time{}, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.GetDatabase", verr)
	}
	return rec.CreatedAt, nil
}

// AcquireDatabase marks name as in use by an open engine handle; call
// ReleaseDatabase on close. Engine.acquireDatabase/CloseDatabase wrap these.
func (c *Catalog) AcquireDatabase(name string) { c.tracker.acquire(name) }

// ReleaseDatabase marks name as no longer in use by the caller that
// previously called AcquireDatabase.
func (c *Catalog) ReleaseDatabase(name string) { c.tracker.release(name) }
