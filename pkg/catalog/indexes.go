package catalog

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// RegisterIndex persists an index definition. It does not build the index
// itself — that is pkg/index's job, driven by the engine after this call
// succeeds — it only records that the index exists so CREATE INDEX is
// durable and the planner can discover it via ListIndexes.
func (c *Catalog) RegisterIndex(def types.IndexDefinition) error {
	if err := validateName(def.Name); err != nil {
		return err
	}
	data, err := json.Marshal(def)
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.RegisterIndex", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndexes)
		if b.Get([]byte(def.Name)) != nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeAlreadyExists, "catalog.RegisterIndex",
				"index already exists: "+def.Name)
		}
		if err := b.Put([]byte(def.Name), data); err != nil {
			return err
		}
		return bumpSchemaVersion(tx)
	})
	if err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			return e
		}
		return nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.RegisterIndex", err)
	}
	return nil
}

// DropIndex removes an index definition, for DROP INDEX.
func (c *Catalog) DropIndex(name string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndexes)
		if b.Get([]byte(name)) == nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeNotFound, "catalog.DropIndex",
				"no such index: "+name)
		}
		if err := b.Delete([]byte(name)); err != nil {
			return err
		}
		return bumpSchemaVersion(tx)
	})
	if err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			return e
		}
		return nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.DropIndex", err)
	}
	return nil
}

// GetIndex returns a single index definition by name.
func (c *Catalog) GetIndex(name string) (types.IndexDefinition, error) {
	var def types.IndexDefinition
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndexes).Get([]byte(name))
		if v == nil {
			return nexuserr.New(nexuserr.KindCatalog, nexuserr.CodeNotFound, "catalog.GetIndex",
				"no such index: "+name)
		}
		return json.Unmarshal(v, &def)
	})
	if err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			return types.IndexDefinition{}, e
		}
		return types.IndexDefinition{}, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.GetIndex", err)
	}
	return def, nil
}

// ListIndexes returns every registered index, for db.indexes() and the
// planner's index-selection pass.
func (c *Catalog) ListIndexes() ([]types.IndexDefinition, error) {
	var defs []types.IndexDefinition
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndexes).ForEach(func(k, v []byte) error {
			var def types.IndexDefinition
			if err := json.Unmarshal(v, &def); err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		})
	})
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindCatalog, nexuserr.CodeStorageIO, "catalog.ListIndexes", err)
	}
	return defs, nil
}

// IndexesForLabel returns every index registered against label, for the
// planner to consider when scoring a label scan's access paths.
func (c *Catalog) IndexesForLabel(label types.LabelID) ([]types.IndexDefinition, error) {
	all, err := c.ListIndexes()
	if err != nil {
		return nil, err
	}
	var out []types.IndexDefinition
	for _, d := range all {
		if !d.OnRelType && d.Label == label {
			out = append(out, d)
		}
	}
	return out, nil
}
