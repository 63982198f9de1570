// Package hnsw implements the per-segment approximate nearest neighbor graph
// described in spec §4.1/§4.4: a multi-layer, directed graph over vector
// addresses, built once at segment creation and read-only thereafter.
//
// The algorithm (greedy descent through upper layers, beam search at layer
// zero, exponential level assignment, neighbor-list pruning) follows
// nornicdb's pkg/search/hnsw_index.go; this port generalizes it from that
// package's float64-slice-keyed nodes to the segment's address-indexed
// Retriever abstraction so the same graph code works whether vectors live in
// a mutable in-memory build or a read-only mmap-backed DataStore.
package hnsw

import (
	"math"
	"math/rand"
	"sort"

	"github.com/shardstore/shardcore/bitset"
)

// QueryAddr is the sentinel address a Retriever recognizes as "the live query
// vector" rather than a stored address, letting Search run the same distance
// path used for insertion without a stored placeholder (original_source's
// segment.rs "query address" trick).
const QueryAddr = ^uint32(0)

// Retriever computes similarity between two addresses, where either address
// may be QueryAddr. Higher return values mean more similar (spec's
// similarity convention, not distance).
type Retriever interface {
	Similarity(a, b uint32) float32
}

// Config tunes graph construction and search (spec §4.1 HNSW parameters).
type Config struct {
	M              int // neighbors selected per insertion, at every layer
	MaxM           int // neighbor cap above layer 0
	MaxM0          int // neighbor cap at layer 0
	EfConstruction int
	EfSearch       int
	LevelMult      float64 // 1/ln(M), the exponential level distribution scale
}

// DefaultConfig returns the parameter set spec §9 suggests as a reasonable
// default.
func DefaultConfig() Config {
	m := 16
	return Config{
		M:              m,
		MaxM:           m,
		MaxM0:          2 * m,
		EfConstruction: 100,
		EfSearch:       100,
		LevelMult:      1 / math.Log(float64(m)),
	}
}

// candidate pairs an address with its similarity to some reference point.
type candidate struct {
	addr uint32
	sim  float32
}

// RAMHnsw is the mutable builder used while a segment is being created: every
// vector address 0..N is inserted once, in order (spec §4.1 "insert every
// vector address 0..N at segment create").
type RAMHnsw struct {
	cfg        Config
	retriever  Retriever
	entry      uint32
	hasEntry   bool
	entryLevel int
	level      map[uint32]int
	// neighbors[layer][addr] = sorted-by-nothing adjacency list at that layer.
	neighbors []map[uint32][]uint32
	rng       *rand.Rand
}

// NewRAMHnsw creates an empty builder. rng may be nil, in which case a
// package-default source seeded from a fixed value is used so that level
// assignment (and hence the graph shape) is reproducible across runs of the
// same insertion sequence — tests rely on this.
func NewRAMHnsw(cfg Config, retriever Retriever, rng *rand.Rand) *RAMHnsw {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &RAMHnsw{
		cfg:       cfg,
		retriever: retriever,
		level:     make(map[uint32]int),
		neighbors: []map[uint32][]uint32{make(map[uint32][]uint32)},
		rng:       rng,
	}
}

// randomLevel draws from the exponential distribution HNSW uses to keep
// upper layers sparse: -ln(U) * levelMult, U uniform on (0,1].
func (h *RAMHnsw) randomLevel() int {
	u := h.rng.Float64()
	if u == 0 {
		u = 1e-300
	}
	return int(-math.Log(u) * h.cfg.LevelMult)
}

func (h *RAMHnsw) ensureLayers(upTo int) {
	for len(h.neighbors) <= upTo {
		h.neighbors = append(h.neighbors, make(map[uint32][]uint32))
	}
}

// Insert adds addr to the graph.
func (h *RAMHnsw) Insert(addr uint32) {
	lvl := h.randomLevel()
	h.ensureLayers(lvl)
	h.level[addr] = lvl

	if !h.hasEntry {
		h.entry = addr
		h.entryLevel = lvl
		h.hasEntry = true
		return
	}

	cur := h.entry
	for l := h.entryLevel; l > lvl; l-- {
		cur = h.greedyStep(cur, addr, l)
	}

	for l := min(lvl, h.entryLevel); l >= 0; l-- {
		maxM := h.cfg.MaxM
		if l == 0 {
			maxM = h.cfg.MaxM0
		}
		candidates := h.searchLayer(addr, cur, h.cfg.EfConstruction, l, nil)
		neighbors := selectNeighbors(candidates, h.cfg.M)
		for _, n := range neighbors {
			h.connect(addr, n.addr, l, maxM)
			h.connect(n.addr, addr, l, maxM)
		}
		if len(candidates) > 0 {
			cur = candidates[0].addr
		}
	}

	if lvl > h.entryLevel {
		h.entry = addr
		h.entryLevel = lvl
	}
}

func (h *RAMHnsw) connect(from, to uint32, layer, maxM int) {
	h.ensureLayers(layer)
	list := append(h.neighbors[layer][from], to)
	if len(list) > maxM {
		scored := make([]candidate, len(list))
		for i, n := range list {
			scored[i] = candidate{addr: n, sim: h.retriever.Similarity(from, n)}
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].sim > scored[j].sim })
		list = list[:0]
		for i := 0; i < maxM; i++ {
			list = append(list, scored[i].addr)
		}
	}
	h.neighbors[layer][from] = list
}

// greedyStep performs a single-best-neighbor walk at the given layer,
// returning the closest node found to target starting from cur.
func (h *RAMHnsw) greedyStep(cur, target uint32, layer int) uint32 {
	improved := true
	best := cur
	bestSim := h.retriever.Similarity(target, best)
	for improved {
		improved = false
		for _, n := range h.neighbors[layer][best] {
			if sim := h.retriever.Similarity(target, n); sim > bestSim {
				bestSim = sim
				best = n
				improved = true
			}
		}
	}
	return best
}

// searchLayer is the ef-bounded beam search used both during construction and
// at query time. filter, if non-nil, restricts which addresses may appear in
// the returned candidate set (paragraph-address semantics are translated to
// vector addresses by the caller); nodes failing the filter are still
// traversed so the graph's connectivity keeps working under restriction.
func (h *RAMHnsw) searchLayer(target, entry uint32, ef, layer int, filter func(uint32) bool) []candidate {
	visited := map[uint32]bool{entry: true}
	entrySim := h.retriever.Similarity(target, entry)

	candidates := []candidate{{entry, entrySim}}
	var results []candidate
	if filter == nil || filter(entry) {
		results = append(results, candidates[0])
	}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
		c := candidates[0]
		candidates = candidates[1:]

		if len(results) > 0 {
			worst := worstOf(results)
			if c.sim < worst && len(results) >= ef {
				break
			}
		}

		for _, n := range h.neighbors[layer][c.addr] {
			if visited[n] {
				continue
			}
			visited[n] = true
			sim := h.retriever.Similarity(target, n)
			candidates = append(candidates, candidate{n, sim})
			if filter == nil || filter(n) {
				results = append(results, candidate{n, sim})
			}
		}
		if len(results) > ef {
			sort.Slice(results, func(i, j int) bool { return results[i].sim > results[j].sim })
			results = results[:ef]
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].sim > results[j].sim })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func worstOf(c []candidate) float32 {
	worst := c[0].sim
	for _, x := range c {
		if x.sim < worst {
			worst = x.sim
		}
	}
	return worst
}

func selectNeighbors(candidates []candidate, m int) []candidate {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	return candidates
}

// ScoredAddr is one search hit: a vector address with its similarity to the
// query.
type ScoredAddr struct {
	Addr uint32
	Sim  float32
}

// Search runs the standard HNSW query path: greedy descent through upper
// layers from the entry point, then an ef-bounded beam search at layer 0.
// filterAlive, if non-nil, restricts hits to addresses it accepts (used to
// intersect with a segment's alive bitset or a prefilter's candidate set —
// spec §4.5 step 4/5).
func (h *RAMHnsw) Search(k, ef int, filterAlive func(uint32) bool) []ScoredAddr {
	if !h.hasEntry {
		return nil
	}
	cur := h.entry
	for l := h.entryLevel; l > 0; l-- {
		cur = h.greedyStep(cur, QueryAddr, l)
	}
	results := h.searchLayer(QueryAddr, cur, ef, 0, filterAlive)
	if len(results) > k {
		results = results[:k]
	}
	out := make([]ScoredAddr, len(results))
	for i, c := range results {
		out[i] = ScoredAddr{Addr: c.addr, Sim: c.sim}
	}
	return out
}

// Len reports how many addresses have been inserted.
func (h *RAMHnsw) Len() int { return len(h.level) }

// SetRetriever retargets the graph at a different Retriever, used after a
// merge that reuses an operant's graph wholesale: the graph's adjacency
// structure (node identities and edges) is unchanged, but similarity lookups
// must now resolve addresses against the merged DataStore rather than the
// original operant's (spec §4.3 HNSW-reuse-on-no-deletions optimization).
func (h *RAMHnsw) SetRetriever(r Retriever) { h.retriever = r }

// AliveFilter adapts a paragraph-indexed alive bitset into a vector-address
// predicate of the form Search takes as its filter.
func AliveFilter(alive *bitset.BitSet, ownerOf func(vectorAddr uint32) int) func(uint32) bool {
	return func(vectorAddr uint32) bool {
		return alive.Test(ownerOf(vectorAddr))
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
