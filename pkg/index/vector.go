package index

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/nexusdb/nexus/pkg/nexuserr"
	"github.com/nexusdb/nexus/pkg/types"
)

// DistanceKind selects the metric a VectorIndex was built with, per
// spec.md §4.8: `<->` is cosine distance, `distance(a,b)` is Euclidean.
type DistanceKind uint8

const (
	DistanceCosine DistanceKind = iota
	DistanceEuclidean
)

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

type hnswNode struct {
	id        types.NodeID
	vector    []float32
	level     int
	neighbors [][]types.NodeID // neighbors[l] = this node's neighbor ids at layer l
}

// VectorIndex is an HNSW (hierarchical navigable small world) graph
// over fixed-dimension float32 vectors, per spec.md §4.8. Insertion
// assigns each node a random level from an exponential distribution
// and greedily links it to its nearest neighbors layer by layer, top
// down; search descends the same way, widening to efSearch candidates
// once it reaches the bottom layer.
type VectorIndex struct {
	mu         sync.RWMutex
	dim        int
	m          int
	efConstr   int
	efSearch   int
	dist       DistanceKind
	levelMult  float64
	entryPoint types.NodeID
	hasEntry   bool
	maxLevel   int
	nodes      map[types.NodeID]*hnswNode
	rng        *rand.Rand
}

// NewVectorIndex builds an empty HNSW index for dim-dimensional
// vectors under the given distance metric and tuning parameters,
// defaulting m=16, efConstruction=200, efSearch=50 per spec.md §4.8
// when the caller passes 0.
func NewVectorIndex(dim int, dist DistanceKind, m, efConstruction, efSearch int) *VectorIndex {
	if m <= 0 {
		m = 16
	}
	if efConstruction <= 0 {
		efConstruction = 200
	}
	if efSearch <= 0 {
		efSearch = 50
	}
	return &VectorIndex{
		dim:       dim,
		m:         m,
		efConstr:  efConstruction,
		efSearch:  efSearch,
		dist:      dist,
		levelMult: 1 / math.Log(float64(m)),
		nodes:     map[types.NodeID]*hnswNode{},
		rng:       rand.New(rand.NewSource(1)),
	}
}

func (vi *VectorIndex) distance(a, b []float32) float64 {
	if vi.dist == DistanceEuclidean {
		return euclideanDistance(a, b)
	}
	return cosineDistance(a, b)
}

// randomLevel draws a level from the exponential distribution the HNSW
// paper specifies: level = floor(-ln(U) * mL), mL = 1/ln(m), so that on
// average only a 1/m fraction of nodes appear at each successive layer.
func (vi *VectorIndex) randomLevel() int {
	u := vi.rng.Float64()
	if u == 0 {
		u = 1e-12
	}
	level := int(-math.Log(u) * vi.levelMult)
	if level > 32 {
		level = 32
	}
	return level
}

type candidate struct {
	id   types.NodeID
	dist float64
}

// Insert adds id/vector to the graph. All vectors under one index must
// share dim; a mismatch returns CodeVectorDimensionMismatch per
// spec.md §4.8.
func (vi *VectorIndex) Insert(id types.NodeID, vector []float32) error {
	if len(vector) != vi.dim {
		return nexuserr.New(nexuserr.KindExecute, nexuserr.CodeVectorDimensionMismatch, "index.VectorIndex.Insert",
			"vector dimension does not match index dimensionality")
	}
	vi.mu.Lock()
	defer vi.mu.Unlock()

	level := vi.randomLevel()
	node := &hnswNode{id: id, vector: vector, level: level, neighbors: make([][]types.NodeID, level+1)}
	vi.nodes[id] = node

	if !vi.hasEntry {
		vi.entryPoint = id
		vi.hasEntry = true
		vi.maxLevel = level
		return nil
	}

	entry := vi.entryPoint
	for l := vi.maxLevel; l > level; l-- {
		entry = vi.greedyClosest(entry, vector, l)
	}

	for l := min(level, vi.maxLevel); l >= 0; l-- {
		candidates := vi.searchLayer(vector, entry, vi.efConstr, l)
		selected := vi.selectNeighbors(candidates, vi.m)
		node.neighbors[l] = selected
		for _, nb := range selected {
			vi.addBacklink(nb, id, l)
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}

	if level > vi.maxLevel {
		vi.maxLevel = level
		vi.entryPoint = id
	}
	return nil
}

func (vi *VectorIndex) addBacklink(to, from types.NodeID, level int) {
	n := vi.nodes[to]
	if n == nil || level >= len(n.neighbors) {
		return
	}
	n.neighbors[level] = append(n.neighbors[level], from)
	if len(n.neighbors[level]) > vi.m*2 {
		cands := make([]candidate, 0, len(n.neighbors[level]))
		for _, id := range n.neighbors[level] {
			nb := vi.nodes[id]
			if nb == nil {
				continue
			}
			cands = append(cands, candidate{id: id, dist: vi.distance(n.vector, nb.vector)})
		}
		n.neighbors[level] = vi.selectNeighbors(sortCandidates(cands), vi.m)
	}
}

// Remove drops id from the graph. Neighbors that referenced it simply
// skip it during traversal (checked via vi.nodes[id] != nil); the
// stale backlink itself is left until that neighbor's list is next
// pruned by addBacklink, the same lazy-cleanup tradeoff HNSW
// implementations commonly make to keep deletes cheap.
func (vi *VectorIndex) Remove(id types.NodeID) {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	delete(vi.nodes, id)
	if vi.entryPoint == id {
		vi.hasEntry = false
		for other := range vi.nodes {
			vi.entryPoint = other
			vi.hasEntry = true
			break
		}
	}
}

// Search returns up to k node ids nearest to query by the index's
// distance metric, using efSearch candidates at the bottom layer.
func (vi *VectorIndex) Search(query []float32, k int) ([]types.NodeID, error) {
	if len(query) != vi.dim {
		return nil, nexuserr.New(nexuserr.KindExecute, nexuserr.CodeVectorDimensionMismatch, "index.VectorIndex.Search",
			"query vector dimension does not match index dimensionality")
	}
	vi.mu.RLock()
	defer vi.mu.RUnlock()

	if !vi.hasEntry {
		return nil, nil
	}

	entry := vi.entryPoint
	for l := vi.maxLevel; l > 0; l-- {
		entry = vi.greedyClosest(entry, query, l)
	}

	ef := vi.efSearch
	if k > ef {
		ef = k
	}
	candidates := vi.searchLayer(query, entry, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]types.NodeID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out, nil
}

// greedyClosest walks from entry toward query at a single layer,
// stopping once no neighbor improves on the current node — used to
// descend from the top layer's entry point down to the bottom layer's
// search, per the HNSW paper's layered greedy-then-beam-search shape.
func (vi *VectorIndex) greedyClosest(entry types.NodeID, query []float32, level int) types.NodeID {
	current := entry
	currentDist := vi.distance(vi.nodes[current].vector, query)
	for {
		improved := false
		node := vi.nodes[current]
		if level >= len(node.neighbors) {
			break
		}
		for _, nb := range node.neighbors[level] {
			nbNode := vi.nodes[nb]
			if nbNode == nil {
				continue
			}
			d := vi.distance(nbNode.vector, query)
			if d < currentDist {
				current = nb
				currentDist = d
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return current
}

// searchLayer runs a best-first beam search at level, bounded to ef
// candidates, starting from entry. Returns candidates sorted nearest
// first.
func (vi *VectorIndex) searchLayer(query []float32, entry types.NodeID, ef, level int) []candidate {
	visited := map[types.NodeID]bool{entry: true}
	entryNode := vi.nodes[entry]
	if entryNode == nil {
		return nil
	}
	best := []candidate{{id: entry, dist: vi.distance(entryNode.vector, query)}}
	frontier := append([]candidate(nil), best...)

	for len(frontier) > 0 {
		sortCandidates(frontier)
		c := frontier[0]
		frontier = frontier[1:]
		if len(best) >= ef && c.dist > best[len(best)-1].dist {
			break
		}
		node := vi.nodes[c.id]
		if node == nil || level >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode := vi.nodes[nb]
			if nbNode == nil {
				continue
			}
			d := vi.distance(nbNode.vector, query)
			cand := candidate{id: nb, dist: d}
			best = append(best, cand)
			frontier = append(frontier, cand)
		}
	}
	sortCandidates(best)
	if len(best) > ef {
		best = best[:ef]
	}
	return best
}

func (vi *VectorIndex) selectNeighbors(candidates []candidate, m int) []types.NodeID {
	sortCandidates(candidates)
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]types.NodeID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

func sortCandidates(c []candidate) []candidate {
	sort.Slice(c, func(i, j int) bool { return c[i].dist < c[j].dist })
	return c
}
