// Package vectorsearch fans a query out across a shard's vector segments,
// applies a coarse field prefilter and an optional segment-tag restriction,
// and merges per-segment hits into a single top-K result (spec §4.6).
package vectorsearch

import (
	"fmt"
	"sort"

	"github.com/shardstore/shardcore/formula"
	"github.com/shardstore/shardcore/segment"
)

// SegmentHandle pairs an open segment with the tag set a TagExpr matches
// against (e.g. replication-group or partition tags attached at segment
// creation time).
type SegmentHandle struct {
	Segment *segment.Segment
	Tags    map[string]bool
}

// VectorSearcher fans queries out across every open segment of a shard.
type VectorSearcher struct {
	Segments []SegmentHandle
}

// New builds a VectorSearcher over the given segments.
func New(segments []SegmentHandle) *VectorSearcher {
	return &VectorSearcher{Segments: segments}
}

// composeFormula ANDs a field prefilter's key-set atom onto a caller filter.
// A Some prefilter combined with an OR-rooted filter is rejected: the flat
// Formula model (spec §3) has one root operator for all its atoms, so there
// is no way to express "(a OR b) AND prefilter" without a richer tree: this
// is a deliberate limitation recorded in DESIGN.md rather than silently
// producing the wrong semantics.
func composeFormula(f *formula.Formula, prefilter formula.PrefilterResult) (*formula.Formula, error) {
	switch prefilter.State {
	case formula.PrefilterAll:
		return f, nil
	case formula.PrefilterSome:
		if f == nil || f.Empty() {
			out := formula.New()
			out.Add(prefilter.KeySetAtom())
			return out, nil
		}
		if f.Operator != formula.OpAnd {
			return nil, fmt.Errorf("%w: cannot combine a field prefilter with an OR-rooted filter", ErrInvalidQuery)
		}
		out := formula.New()
		out.Extend(f)
		out.Add(prefilter.KeySetAtom())
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unexpected prefilter state", ErrInvalidQuery)
	}
}

// Search runs a single-vector nearest-neighbor query across every segment
// whose tags satisfy tagFilter (nil matches every segment), merging the
// results and, unless withDuplicates is set, deduplicating them by vector
// bytes (spec §4.6 step 6). Candidates scoring below minScore are dropped at
// the segment layer; pass segment.NoMinScore for no cutoff.
func (vs *VectorSearcher) Search(query []float32, k, ef int, f *formula.Formula, prefilter formula.PrefilterResult, tagFilter *TagExpr, withDuplicates bool, minScore float32) ([]Item, error) {
	if prefilter.State == formula.PrefilterNone {
		return nil, nil
	}
	composed, err := composeFormula(f, prefilter)
	if err != nil {
		return nil, err
	}

	fssc := NewFssc(k, withDuplicates)
	for segIdx, h := range vs.Segments {
		if tagFilter != nil && !tagFilter.Matches(h.Tags) {
			continue
		}
		hits, err := h.Segment.Search(query, k, ef, composed, withDuplicates, minScore)
		if err != nil {
			return nil, fmt.Errorf("vectorsearch: segment %d: %w", segIdx, err)
		}
		for _, hit := range hits {
			vb, err := h.Segment.VectorBytes(hit)
			if err != nil {
				return nil, err
			}
			fssc.Add(Item{
				Key:         hit.Key,
				Score:       hit.Score,
				VectorBytes: vb,
				SegmentIdx:  segIdx,
				Paragraph:   hit.ParagraphAddr,
			})
		}
	}
	return fssc.Items(), nil
}

// candidateWidenFactor controls how many extra candidates the first-token
// approximate stage of SearchMultiVector pulls in before exact maxsim
// rescoring, trading recall for rescoring cost.
const candidateWidenFactor = 10

// SearchMultiVector answers a multi-vector (maxsim) query: it gathers a
// widened candidate set using only the first query vector as an approximate
// recall stage (with duplicates allowed and no min-score cutoff, so recall
// is never narrowed before rescoring — spec §4.6), deduplicates candidates
// by (segment, paragraph) address, then rescores every surviving candidate
// exactly with the full maxsim formula, drops any candidate scoring at or
// below minScore, and returns the top K (spec §4.6, original_source's
// `search_multi_vector`: "dedup by address before rescoring").
func (vs *VectorSearcher) SearchMultiVector(queryVectors [][]float32, k, ef int, f *formula.Formula, prefilter formula.PrefilterResult, tagFilter *TagExpr, minScore float32) ([]Item, error) {
	if len(queryVectors) == 0 {
		return nil, nil
	}
	if prefilter.State == formula.PrefilterNone {
		return nil, nil
	}
	composed, err := composeFormula(f, prefilter)
	if err != nil {
		return nil, err
	}

	type addrKey struct {
		seg  int
		addr uint32
	}
	seen := make(map[addrKey]bool)
	var candidates []addrKey

	for segIdx, h := range vs.Segments {
		if tagFilter != nil && !tagFilter.Matches(h.Tags) {
			continue
		}
		hits, err := h.Segment.Search(queryVectors[0], k*candidateWidenFactor, ef, composed, true, segment.NoMinScore)
		if err != nil {
			return nil, fmt.Errorf("vectorsearch: segment %d: %w", segIdx, err)
		}
		for _, hit := range hits {
			key := addrKey{segIdx, hit.ParagraphAddr}
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, key)
		}
	}

	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		h := vs.Segments[c.seg]
		score, err := h.Segment.ScoreMaxSim(int(c.addr), queryVectors)
		if err != nil {
			return nil, err
		}
		if score <= minScore {
			continue
		}
		p, err := h.Segment.Data.GetParagraph(int(c.addr))
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Key: p.Key, Score: score, SegmentIdx: c.seg, Paragraph: c.addr})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}
