package segment

import (
	"fmt"
	"math"
	"sort"

	"github.com/shardstore/shardcore/bitset"
	"github.com/shardstore/shardcore/formula"
	"github.com/shardstore/shardcore/vectype"
)

// NoMinScore disables the min-score cutoff: every candidate
// passes regardless of its score (spec §4.5.4 step 5, "min_score absent or
// -inf means no cutoff").
var NoMinScore = float32(math.Inf(-1))

// Hit is one paragraph result: its address, external key, score (similarity
// of its single best-matching vector to the query), and the address of that
// best-matching vector (used by a multi-segment searcher to dedup hits by
// vector bytes, spec §4.6).
type Hit struct {
	ParagraphAddr uint32
	Key           string
	Score         float32
	VectorAddr    uint32
}

// VectorBytes returns the encoded bytes of a hit's representative vector,
// for byte-level dedup across segments.
func (s *Segment) VectorBytes(h Hit) ([]byte, error) {
	return s.Data.GetVectorBytes(int(h.VectorAddr))
}

// Search runs the crossover-planned nearest neighbor search (spec §4.5): it
// restricts to paragraphs alive and matching f (nil or empty f means no
// restriction beyond aliveness), then picks brute-force scanning or HNSW
// traversal depending on how small the restricted candidate set is relative
// to the full segment.
//
// withDuplicates is accepted for ABI parity with the public search ABI
// (spec §6.3, `search(query, filter, with_duplicates, top_k, config,
// min_score)`); a single segment never produces more than one hit per
// paragraph on its own, so the with-duplicates contract is enforced where
// duplicates actually arise, across segments in vectorsearch.Fssc. minScore
// is applied in both the brute-force and the HNSW branch: a hit scoring
// below it is dropped. Pass NoMinScore for no cutoff. Hits are ordered by
// descending score; equal scores are ordered by ascending paragraph address.
func (s *Segment) Search(query []float32, k int, ef int, f *formula.Formula, withDuplicates bool, minScore float32) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.cfg.VectorType.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, segment expects %d", ErrDimensionMismatch, len(query), s.cfg.VectorType.Dimension)
	}
	candidates := s.candidateBitset(f)
	candidateCount := candidates.Count()
	if candidateCount == 0 {
		return nil, nil
	}

	total := s.Alive.Len()
	expectedTraversalScan := float64(k) * float64(total) / float64(candidateCount)
	useBruteForce := float64(candidateCount) < expectedTraversalScan*HNSWCostFactor

	vt := s.cfg.VectorType
	simFunc := s.cfg.Similarity.Func()
	queryVec := query
	if s.cfg.NormalizeVectors {
		queryVec = vectype.Normalize(query)
	}
	queryBytes := vt.Encode(queryVec)

	if useBruteForce {
		return s.bruteForceSearch(candidates, queryBytes, simFunc, k, minScore)
	}
	if ef <= 0 {
		ef = s.cfg.HNSW.EfSearch
	}
	if ef < k {
		ef = k
	}
	return s.hnswSearch(candidates, queryBytes, k, ef, minScore)
}

// candidateBitset intersects the compiled formula (if any) with the alive
// set, returning a paragraph-address bitset.
func (s *Segment) candidateBitset(f *formula.Formula) *bitset.BitSet {
	compiled := s.Indexes.Filter(f)
	if compiled == nil {
		return s.Alive.Clone()
	}
	compiled.IntersectWith(s.Alive)
	return compiled
}

func (s *Segment) bruteForceSearch(candidates *bitset.BitSet, queryBytes []byte, simFunc func(a, b []byte) float32, k int, minScore float32) ([]Hit, error) {
	var hits []Hit
	for _, addr := range candidates.Iter() {
		best, bestAddr, err := s.bestVectorScore(int(addr), queryBytes, simFunc)
		if err != nil {
			return nil, err
		}
		if best < minScore {
			continue
		}
		p, err := s.Data.GetParagraph(int(addr))
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ParagraphAddr: addr, Key: p.Key, Score: best, VectorAddr: uint32(bestAddr)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ParagraphAddr < hits[j].ParagraphAddr
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// bestVectorScore collapses a multi-vector paragraph to its single highest
// similarity against the query (spec's brute-force per-paragraph max-vector
// collapsing).
func (s *Segment) bestVectorScore(paragraphAddr int, queryBytes []byte, simFunc func(a, b []byte) float32) (score float32, addr int, err error) {
	start, end, err := s.Data.VectorRange(paragraphAddr)
	if err != nil {
		return 0, 0, err
	}
	first := true
	for v := start; v < end; v++ {
		vb, err := s.Data.GetVectorBytes(v)
		if err != nil {
			return 0, 0, err
		}
		sim := simFunc(queryBytes, vb)
		if first || sim > score {
			score = sim
			addr = v
			first = false
		}
	}
	return score, addr, nil
}

// hnswSearch runs the graph traversal with the query vector installed on the
// segment's shared retriever, then collapses vector-level hits down to
// paragraph-level hits (a multi-vector paragraph may surface more than once
// across its vector addresses; only its best-scoring vector counts).
func (s *Segment) hnswSearch(candidates *bitset.BitSet, queryBytes []byte, k, ef int, minScore float32) ([]Hit, error) {
	s.retr.query = queryBytes
	defer func() { s.retr.query = nil }()

	filter := func(vectorAddr uint32) bool {
		owner, err := s.Data.ParagraphOf(int(vectorAddr))
		if err != nil {
			return false
		}
		return candidates.Test(owner)
	}

	scored := s.Graph.Search(k*4+ef, ef, filter)

	type best struct {
		score float32
		addr  uint32
	}
	bestByParagraph := make(map[uint32]best)
	for _, sc := range scored {
		if sc.Sim < minScore {
			continue
		}
		owner, err := s.Data.ParagraphOf(int(sc.Addr))
		if err != nil {
			continue
		}
		if cur, ok := bestByParagraph[uint32(owner)]; !ok || sc.Sim > cur.score {
			bestByParagraph[uint32(owner)] = best{score: sc.Sim, addr: sc.Addr}
		}
	}

	hits := make([]Hit, 0, len(bestByParagraph))
	for addr, b := range bestByParagraph {
		p, err := s.Data.GetParagraph(int(addr))
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ParagraphAddr: addr, Key: p.Key, Score: b.score, VectorAddr: b.addr})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ParagraphAddr < hits[j].ParagraphAddr
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// ScoreMaxSim computes the maxsim score of a paragraph against a set of
// query token vectors: for each query vector, the highest similarity to any
// of the paragraph's stored vectors, summed across query vectors (spec
// §4.6's multi-vector scoring, grounded in original_source's
// `search_multi_vector`).
func (s *Segment) ScoreMaxSim(paragraphAddr int, queryVectors [][]float32) (float32, error) {
	start, end, err := s.Data.VectorRange(paragraphAddr)
	if err != nil {
		return 0, err
	}
	simFunc := s.cfg.Similarity.Func()
	vt := s.cfg.VectorType

	stored := make([][]byte, 0, end-start)
	for v := start; v < end; v++ {
		vb, err := s.Data.GetVectorBytes(v)
		if err != nil {
			return 0, err
		}
		stored = append(stored, vb)
	}

	var total float32
	for _, qv := range queryVectors {
		if len(qv) != vt.Dimension {
			return 0, fmt.Errorf("%w: query vector has %d dimensions, segment expects %d", ErrDimensionMismatch, len(qv), vt.Dimension)
		}
		qb := vt.Encode(qv)
		best := float32(0)
		first := true
		for _, sb := range stored {
			sim := simFunc(qb, sb)
			if first || sim > best {
				best = sim
				first = false
			}
		}
		total += best
	}
	return total, nil
}
