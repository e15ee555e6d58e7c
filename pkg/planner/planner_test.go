package planner

import (
	"testing"

	"github.com/nexusdb/nexus/pkg/cypher/parser"
	"github.com/nexusdb/nexus/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeStats is a hand-written Stats implementation for planner unit
// tests, avoiding a live catalog/index pair.
type fakeStats struct {
	version     uint64
	labelCounts map[string]uint64
	indexes     map[string]types.IndexDefinition // key: label+"."+property
}

func (f *fakeStats) SchemaVersion() (uint64, error) { return f.version, nil }

func (f *fakeStats) LabelCardinality(label string) (uint64, bool) {
	n, ok := f.labelCounts[label]
	return n, ok
}

func (f *fakeStats) TotalNodes() uint64 {
	var total uint64
	for _, n := range f.labelCounts {
		total += n
	}
	return total
}

func (f *fakeStats) IndexFor(label, property string) (types.IndexDefinition, bool) {
	d, ok := f.indexes[label+"."+property]
	return d, ok
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		version:     1,
		labelCounts: map[string]uint64{"Person": 1000, "Company": 50},
		indexes:     map[string]types.IndexDefinition{},
	}
}

func TestLowerSimpleMatchReturn(t *testing.T) {
	q, err := parser.Parse(`MATCH (n:Person) WHERE n.age > 30 RETURN n.name`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)

	proj, ok := logical.(*Projection)
	require.True(t, ok)
	sel, ok := proj.Input.(*Selection)
	require.True(t, ok)
	scan, ok := sel.Input.(*NodeByLabelScan)
	require.True(t, ok)
	require.Equal(t, "Person", scan.Label)
}

func TestAnnotatePropagatesCardinality(t *testing.T) {
	q, err := parser.Parse(`MATCH (n:Person) RETURN n`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)

	phys, err := Annotate(logical, newFakeStats())
	require.NoError(t, err)
	require.Equal(t, "Projection", phys.Name)
	require.Equal(t, uint64(1000), phys.EstRows)
}

func TestAnnotateExpandMultipliesFanout(t *testing.T) {
	q, err := parser.Parse(`MATCH (a:Person)-[:KNOWS]->(b:Person) RETURN b`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)

	phys, err := Annotate(logical, newFakeStats())
	require.NoError(t, err)
	require.Greater(t, phys.EstRows, uint64(1000))
}

func TestAnnotateCartesianJoinUsesNestedLoop(t *testing.T) {
	q, err := parser.Parse(`MATCH (a:Person), (b:Person) WHERE a.id = b.mentorId RETURN a, b`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)

	// Two independent pattern parts sharing no variable join as a
	// cartesian NestedLoopJoin at the logical level; with no join keys
	// annotation keeps it a NestedLoopJoin.
	phys, err := Annotate(logical, newFakeStats())
	require.NoError(t, err)
	require.NotNil(t, phys)
	found := false
	for _, r := range Explain(phys) {
		if r.Name == "NestedLoopJoin" {
			found = true
		}
	}
	require.True(t, found)
}

func TestAnnotateIndexSeekRequiresIndex(t *testing.T) {
	q, err := parser.Parse(`MATCH (n:Person) USING INDEX n Person(age) WHERE n.age = 30 RETURN n`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)

	_, err = Annotate(logical, newFakeStats())
	require.Error(t, err)

	stats := newFakeStats()
	stats.indexes["Person.age"] = types.IndexDefinition{Name: "person_age"}
	phys, err := Annotate(logical, stats)
	require.NoError(t, err)
	rows := Explain(phys)
	found := false
	for _, r := range rows {
		if r.Name == "IndexSeek" {
			found = true
		}
	}
	require.True(t, found)
}

func TestFingerprintIgnoresLiteralsButNotShape(t *testing.T) {
	q1, err := parser.Parse(`MATCH (n:Person) WHERE n.age = 30 RETURN n.name`)
	require.NoError(t, err)
	q2, err := parser.Parse(`MATCH (n:Person) WHERE n.age = 99 RETURN n.name`)
	require.NoError(t, err)
	q3, err := parser.Parse(`MATCH (n:Company) WHERE n.age = 30 RETURN n.name`)
	require.NoError(t, err)

	require.Equal(t, Fingerprint(q1, 1), Fingerprint(q2, 1))
	require.NotEqual(t, Fingerprint(q1, 1), Fingerprint(q3, 1))
	require.NotEqual(t, Fingerprint(q1, 1), Fingerprint(q1, 2))
}

func TestPlannerCachesPlans(t *testing.T) {
	p := New(newFakeStats())
	r1, err := p.Plan(`MATCH (n:Person) RETURN n`)
	require.NoError(t, err)
	require.False(t, r1.Cached)

	r2, err := p.Plan(`MATCH (n:Person) RETURN n`)
	require.NoError(t, err)
	require.True(t, r2.Cached)
	require.Same(t, r1.Physical, r2.Physical)
}

func TestPlannerInvalidateClearsCache(t *testing.T) {
	p := New(newFakeStats())
	_, err := p.Plan(`MATCH (n:Person) RETURN n`)
	require.NoError(t, err)
	require.Equal(t, 1, p.cache.Len())
	p.Invalidate()
	require.Equal(t, 0, p.cache.Len())
}

func TestUnionLowersToUnionOp(t *testing.T) {
	q, err := parser.Parse(`MATCH (n:Person) RETURN n.name UNION ALL MATCH (n:Company) RETURN n.name`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)
	u, ok := logical.(*Union)
	require.True(t, ok)
	require.True(t, u.All)
}

func TestAggregateDetectedFromCountStar(t *testing.T) {
	q, err := parser.Parse(`MATCH (n:Person) RETURN count(*) AS total`)
	require.NoError(t, err)
	logical, err := Lower(q)
	require.NoError(t, err)
	agg, ok := logical.(*Aggregate)
	require.True(t, ok)
	require.Len(t, agg.Aggs, 1)
}
