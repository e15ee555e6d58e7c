package planner

import (
	"github.com/nexusdb/nexus/pkg/cypher/ast"
	"github.com/nexusdb/nexus/pkg/cypher/parser"
	"github.com/nexusdb/nexus/pkg/log"
	"github.com/rs/zerolog"
)

// Planner parses, lowers, cost-annotates, and caches physical plans for
// incoming Cypher text, tying together pkg/cypher/parser, the logical
// plan builder in lower.go, and the cost model in cost.go.
type Planner struct {
	stats Stats
	cache *PlanCache
	log   zerolog.Logger
}

// New builds a Planner over the given statistics source.
func New(stats Stats) *Planner {
	return &Planner{stats: stats, cache: NewPlanCache(), log: log.WithComponent("planner")}
}

// Result is what Plan returns: the parsed query (needed by the
// executor to read clause-local details the physical tree doesn't
// carry, such as parameter names) alongside its physical plan.
type Result struct {
	Query    *ast.Query
	Physical *Physical
	Cached   bool
}

// Plan parses src, and returns a cached physical plan if one exists for
// its fingerprint at the current schema version, building and caching
// a fresh one otherwise.
func (p *Planner) Plan(src string) (*Result, error) {
	q, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}

	version, err := p.stats.SchemaVersion()
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(q, version)

	if cached, ok := p.cache.Get(fp); ok {
		return &Result{Query: q, Physical: cached, Cached: true}, nil
	}

	logical, err := Lower(q)
	if err != nil {
		return nil, err
	}
	phys, err := Annotate(logical, p.stats)
	if err != nil {
		return nil, err
	}
	p.cache.Put(fp, phys)
	p.log.Debug().Str("fingerprint", fp[:12]).Uint64("schema_version", version).Msg("planned query")
	return &Result{Query: q, Physical: phys}, nil
}

// Invalidate drops every cached plan; callers don't need to call this
// for ordinary schema changes (the schema version is part of the
// fingerprint already). No built-in procedure calls it.
func (p *Planner) Invalidate() { p.cache.Purge() }
