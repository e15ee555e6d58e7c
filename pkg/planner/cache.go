package planner

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds the plan cache's memory footprint; spec.md
// §4.6 requires cache lookup time to bound planning overhead to ≤10ms
// but leaves the size itself unspecified.
const defaultCacheSize = 512

// PlanCache memoizes physical plans by fingerprint. Evicted on normal
// LRU pressure; invalidated on a schema change not by explicit
// invalidation but because the schema version is itself baked into the
// fingerprint (see Fingerprint) — a bumped schema version simply misses
// the cache and the stale entry ages out under LRU pressure like any
// other cold entry.
type PlanCache struct {
	cache *lru.Cache[string, *Physical]
}

// NewPlanCache constructs a plan cache. Grounded on
// github.com/hashicorp/golang-lru/v2, present in the example pack's
// go.mod (AKJUS-bsc-erigon, evalgo-org-eve) though no retrieved file
// calls it directly; the generic New/Get/Add surface used here is the
// library's stable public API.
func NewPlanCache() *PlanCache {
	c, err := lru.New[string, *Physical](defaultCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// defaultCacheSize never is.
		panic(err)
	}
	return &PlanCache{cache: c}
}

func (pc *PlanCache) Get(fingerprint string) (*Physical, bool) {
	return pc.cache.Get(fingerprint)
}

func (pc *PlanCache) Put(fingerprint string, plan *Physical) {
	pc.cache.Add(fingerprint, plan)
}

func (pc *PlanCache) Len() int { return pc.cache.Len() }

func (pc *PlanCache) Purge() { pc.cache.Purge() }
