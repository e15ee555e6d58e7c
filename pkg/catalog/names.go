package catalog

import (
	"encoding/binary"
	"regexp"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

var be = binary.LittleEndian

// validNamePattern matches the identifier grammar shared by label names,
// relationship type names, property keys, index names and database names:
// alphanumeric plus underscore and hyphen, starting with a letter.
var validNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func validateName(name string) error {
	if !validNamePattern.MatchString(name) {
		return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeInvalidName, "catalog.validateName",
			"name must start with a letter and contain only letters, digits, '_' or '-': "+name)
	}
	return nil
}

// namespace is the bucket-pair pattern shared by labels, relationship
// types and property keys: a forward name->id bucket and a reverse
// id->name bucket, both updated atomically, with ids assigned from
// bbolt's own monotonic sequence counter.
type namespace struct {
	mu      sync.Mutex
	db      *bolt.DB
	idsB    []byte
	namesB  []byte
}

func (ns *namespace) getOrCreate(name string) (uint32, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()

	var id uint32
	err := ns.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(ns.idsB)
		if v := ids.Get([]byte(name)); v != nil {
			id = be.Uint32(v)
			return nil
		}
		seq, err := ids.NextSequence()
		if err != nil {
			return err
		}
		id = uint32(seq)
		buf := make([]byte, 4)
		be.PutUint32(buf, id)
		if err := ids.Put([]byte(name), buf); err != nil {
			return err
		}
		if err := tx.Bucket(ns.namesB).Put(buf, []byte(name)); err != nil {
			return err
		}
		return bumpSchemaVersion(tx)
	})
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.getOrCreate", err)
	}
	return id, nil
}

func (ns *namespace) lookup(name string) (uint32, bool, error) {
	var id uint32
	var found bool
	err := ns.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(ns.idsB).Get([]byte(name)); v != nil {
			id = be.Uint32(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, false, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.lookup", err)
	}
	return id, found, nil
}

func (ns *namespace) nameOf(id uint32) (string, error) {
	var name string
	buf := make([]byte, 4)
	be.PutUint32(buf, id)
	err := ns.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ns.namesB).Get(buf)
		if v == nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeNotFound, "catalog.nameOf", "unknown id")
		}
		name = string(v)
		return nil
	})
	if err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			return "", e
		}
		return "", nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.nameOf", err)
	}
	return name, nil
}

func (ns *namespace) all() (map[uint32]string, error) {
	out := map[uint32]string{}
	err := ns.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ns.namesB).ForEach(func(k, v []byte) error {
			out[be.Uint32(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.all", err)
	}
	return out, nil
}

func (c *Catalog) labels() *namespace {
	return &namespace{db: c.db, idsB: bucketLabelIDs, namesB: bucketLabelNames}
}
func (c *Catalog) relTypes() *namespace {
	return &namespace{db: c.db, idsB: bucketRelTypeIDs, namesB: bucketRelTypeNames}
}
func (c *Catalog) propKeys() *namespace {
	return &namespace{db: c.db, idsB: bucketPropKeyIDs, namesB: bucketPropKeyNames}
}

// GetOrCreateLabel interns name, assigning it a new LabelID on first use.
func (c *Catalog) GetOrCreateLabel(name string) (types.LabelID, error) {
	id, err := c.labels().getOrCreate(name)
	return types.LabelID(id), err
}

// LookupLabel returns the id for an already-interned label name.
func (c *Catalog) LookupLabel(name string) (types.LabelID, bool, error) {
	id, ok, err := c.labels().lookup(name)
	return types.LabelID(id), ok, err
}

// LabelName returns the interned name for id.
func (c *Catalog) LabelName(id types.LabelID) (string, error) {
	return c.labels().nameOf(uint32(id))
}

// Labels returns every interned label as id -> name.
func (c *Catalog) Labels() (map[types.LabelID]string, error) {
	m, err := c.labels().all()
	if err != nil {
		return nil, err
	}
	out := make(map[types.LabelID]string, len(m))
	for k, v := range m {
		out[types.LabelID(k)] = v
	}
	return out, nil
}

// GetOrCreateRelType interns a relationship type name.
func (c *Catalog) GetOrCreateRelType(name string) (types.RelTypeID, error) {
	id, err := c.relTypes().getOrCreate(name)
	return types.RelTypeID(id), err
}

// LookupRelType returns the id for an already-interned relationship type.
func (c *Catalog) LookupRelType(name string) (types.RelTypeID, bool, error) {
	id, ok, err := c.relTypes().lookup(name)
	return types.RelTypeID(id), ok, err
}

// RelTypeName returns the interned name for id.
func (c *Catalog) RelTypeName(id types.RelTypeID) (string, error) {
	return c.relTypes().nameOf(uint32(id))
}

// RelTypes returns every interned relationship type as id -> name.
func (c *Catalog) RelTypes() (map[types.RelTypeID]string, error) {
	m, err := c.relTypes().all()
	if err != nil {
		return nil, err
	}
	out := make(map[types.RelTypeID]string, len(m))
	for k, v := range m {
		out[types.RelTypeID(k)] = v
	}
	return out, nil
}

// GetOrCreatePropertyKey interns a property key name.
func (c *Catalog) GetOrCreatePropertyKey(name string) (types.PropertyKeyID, error) {
	id, err := c.propKeys().getOrCreate(name)
	return types.PropertyKeyID(id), err
}

// LookupPropertyKey returns the id for an already-interned property key.
func (c *Catalog) LookupPropertyKey(name string) (types.PropertyKeyID, bool, error) {
	id, ok, err := c.propKeys().lookup(name)
	return types.PropertyKeyID(id), ok, err
}

// PropertyKeyName returns the interned name for id.
func (c *Catalog) PropertyKeyName(id types.PropertyKeyID) (string, error) {
	return c.propKeys().nameOf(uint32(id))
}

// PropertyKeys returns every interned property key as id -> name.
func (c *Catalog) PropertyKeys() (map[types.PropertyKeyID]string, error) {
	m, err := c.propKeys().all()
	if err != nil {
		return nil, err
	}
	out := make(map[types.PropertyKeyID]string, len(m))
	for k, v := range m {
		out[types.PropertyKeyID(k)] = v
	}
	return out, nil
}
