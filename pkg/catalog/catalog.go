package catalog

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/pkg/nexuserr"
)

var (
	bucketLabelIDs      = []byte("label_ids")      // name -> id
	bucketLabelNames    = []byte("label_names")    // id -> name
	bucketRelTypeIDs    = []byte("reltype_ids")
	bucketRelTypeNames  = []byte("reltype_names")
	bucketPropKeyIDs    = []byte("propkey_ids")
	bucketPropKeyNames  = []byte("propkey_names")
	bucketIndexes       = []byte("indexes")    // name -> json(IndexDefinition)
	bucketDatabases     = []byte("databases")  // name -> json(databaseRecord)
	bucketMeta          = []byte("meta")       // schema_version -> uint64
)

// Catalog is the bbolt-backed store of database-wide metadata: the
// label/relationship-type/property-key dictionaries, the index registry
// and the multi-database registry. One Catalog instance serves an entire
// engine, not one database, since label interning and the database
// registry are necessarily global.
type Catalog struct {
	db      *bolt.DB
	tracker *openTracker
}

// Open opens (creating if absent) the catalog file under dataDir.
func Open(dataDir string) (*Catalog, error) {
	path := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketLabelIDs, bucketLabelNames,
			bucketRelTypeIDs, bucketRelTypeNames,
			bucketPropKeyIDs, bucketPropKeyNames,
			bucketIndexes, bucketDatabases, bucketMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.Open", err)
	}

	return &Catalog{db: db, tracker: newOpenTracker()}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// SchemaVersion returns the monotonically increasing counter that the
// planner's plan-fingerprint cache checks to invalidate cached plans after
// a label, relationship-type, property-key or index is added.
func (c *Catalog) SchemaVersion() (uint64, error) {
	var v uint64
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta).Get([]byte("schema_version"))
		if b != nil {
			v = be.Uint64(b)
		}
		return nil
	})
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.SchemaVersion", err)
	}
	return v, nil
}

func bumpSchemaVersion(tx *bolt.Tx) error {
	b := tx.Bucket(bucketMeta)
	cur := uint64(0)
	if v := b.Get([]byte("schema_version")); v != nil {
		cur = be.Uint64(v)
	}
	buf := make([]byte, 8)
	be.PutUint64(buf, cur+1)
	return b.Put([]byte("schema_version"), buf)
}
