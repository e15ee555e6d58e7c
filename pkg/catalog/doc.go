// Package catalog owns the metadata a running database needs besides its
// graph data: interned label/relationship-type/property-key names, the
// registry of indexes built over them, and the registry of databases
// hosted by one engine instance. It is backed by a single bbolt file,
// following the same embedded-KV approach the rest of this codebase uses
// for anything that is metadata rather than graph data.
package catalog
