// Package shard implements the facade spec §2 calls out as the top-level
// composition point: it holds a shard's open segments and relations index,
// turns a PrefilterResult into the extra clause a searcher needs, and
// dispatches a query to whichever of the vector or graph path it targets.
package shard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shardstore/shardcore/config"
	"github.com/shardstore/shardcore/formula"
	"github.com/shardstore/shardcore/graph"
	"github.com/shardstore/shardcore/segment"
	"github.com/shardstore/shardcore/vectorsearch"
)

// ErrInconsistentMergeTags is the spec §7 "InconsistentMergeTags" error
// kind: every segment merged together must carry identical tags (spec §3
// "Tags" invariant).
var ErrInconsistentMergeTags = errors.New("shard: segments being merged do not share identical tags")

// Member pairs an open segment with the tags it was created with, mirroring
// vectorsearch.SegmentHandle so a Shard can hand its members straight to a
// VectorSearcher.
type Member struct {
	Segment *segment.Segment
	Tags    map[string]bool
}

// Shard owns a set of vector segments and a relations (graph) index, and is
// the single entrypoint callers query against.
type Shard struct {
	Members  []Member
	Searcher *vectorsearch.VectorSearcher
	Graph    *graph.Store
}

// SegmentSpec names one on-disk segment to open under Open, along with the
// tags and record alignment that are per-segment rather than per-shard
// configuration values (spec §6.4).
type SegmentSpec struct {
	Dir       string
	Tags      []string
	Alignment int
}

// Open loads a shard's configuration file, opens every segment it's given
// against that configuration, and opens the relations index, wiring the
// config package into actual segment/shard construction (spec §6.4: config
// is the live configuration surface segments and the graph index are built
// from). graphDir may be empty, matching graph.Open's in-memory mode.
func Open(cfgPath string, specs []SegmentSpec, graphDir string) (*Shard, error) {
	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	members := make([]Member, len(specs))
	for i, spec := range specs {
		segCfg := cfg.SegmentConfig(spec.Tags, spec.Alignment)
		seg, err := segment.Open(spec.Dir, segCfg)
		if err != nil {
			return nil, fmt.Errorf("shard: open segment %s: %w", spec.Dir, err)
		}
		tags := make(map[string]bool, len(spec.Tags))
		for _, tag := range spec.Tags {
			tags[tag] = true
		}
		members[i] = Member{Segment: seg, Tags: tags}
	}

	graphStore, err := graph.Open(graphDir)
	if err != nil {
		return nil, fmt.Errorf("shard: open relations index: %w", err)
	}

	return New(members, graphStore), nil
}

// New builds a Shard over the given segments and relations store.
func New(members []Member, graphStore *graph.Store) *Shard {
	handles := make([]vectorsearch.SegmentHandle, len(members))
	for i, m := range members {
		handles[i] = vectorsearch.SegmentHandle{Segment: m.Segment, Tags: m.Tags}
	}
	return &Shard{
		Members:  members,
		Searcher: vectorsearch.New(handles),
		Graph:    graphStore,
	}
}

// VectorSearch runs a single-vector nearest-neighbor query across every
// member segment, honoring a field prefilter and an optional segment-tag
// restriction (spec §2 data flow: "shard facade turns PrefilterResult into
// an additional clause → vector... searcher walks its segments").
func (s *Shard) VectorSearch(query []float32, k, ef int, f *formula.Formula, prefilter formula.PrefilterResult, tagFilter *vectorsearch.TagExpr, withDuplicates bool, minScore float32) ([]vectorsearch.Item, error) {
	return s.Searcher.Search(query, k, ef, f, prefilter, tagFilter, withDuplicates, minScore)
}

// VectorSearchMultiVector runs a maxsim multi-vector query across every
// member segment.
func (s *Shard) VectorSearchMultiVector(queryVectors [][]float32, k, ef int, f *formula.Formula, prefilter formula.PrefilterResult, tagFilter *vectorsearch.TagExpr, minScore float32) ([]vectorsearch.Item, error) {
	return s.Searcher.SearchMultiVector(queryVectors, k, ef, f, prefilter, tagFilter, minScore)
}

// GraphSearch evaluates a path query against the shard's relations index and
// shapes the result, applying prefilter as a post-filter restricting results
// to triples whose (resource_id, field_id) matches one of the prefilter's
// fields (spec §4.7.3): a triple qualifies when its ResourceID equals the
// field's ResourceUUID and the field's FieldPath is a prefix of the
// triple's FieldID.
func (s *Shard) GraphSearch(q graph.Query, shape graph.ResponseShape, topK int, prefilter formula.PrefilterResult) (graph.PathResponse, error) {
	if s.Graph == nil {
		return graph.PathResponse{}, fmt.Errorf("%w: shard has no relations index configured", graph.ErrInvalidQuery)
	}
	switch prefilter.State {
	case formula.PrefilterNone:
		return graph.PathResponse{}, nil
	case formula.PrefilterAll:
		return graph.Respond(s.Graph, q, shape, topK)
	case formula.PrefilterSome:
		triples, err := graph.Eval(s.Graph, q)
		if err != nil {
			return graph.PathResponse{}, err
		}
		restricted := triples[:0:0]
		for _, t := range triples {
			if fieldMatches(prefilter.Fields, t) {
				restricted = append(restricted, t)
			}
		}
		return graph.ShapeTriples(restricted, shape, topK), nil
	default:
		return graph.PathResponse{}, fmt.Errorf("%w: unexpected prefilter state", vectorsearch.ErrInvalidQuery)
	}
}

// fieldMatches reports whether t belongs to one of the given prefilter
// fields: its resource must match exactly, and the field's path must be a
// literal prefix of the triple's field_id (spec §4.7.3's "prefix-aware"
// rule — a stored field only matches a supplied path that is actually a
// prefix of it; a differing base segment never matches regardless of
// length).
func fieldMatches(fields []formula.FieldID, t graph.Triple) bool {
	for _, f := range fields {
		if f.ResourceUUID == t.ResourceID && strings.HasPrefix(t.FieldID, f.FieldPath) {
			return true
		}
	}
	return false
}

// ApplyDeletion tombstones the given deletion key across every member
// segment, returning the total number of paragraphs affected.
func (s *Shard) ApplyDeletion(key string, prefix bool) int {
	total := 0
	for _, m := range s.Members {
		total += m.Segment.ApplyDeletion(key, prefix)
	}
	return total
}

// SpaceUsage sums every member segment's on-disk footprint (spec's
// supplemented space-usage accounting, exposed to the shard layer for
// eviction heuristics).
func (s *Shard) SpaceUsage() (int64, error) {
	var total int64
	for _, m := range s.Members {
		u, err := m.Segment.SpaceUsage()
		if err != nil {
			return 0, err
		}
		total += u
	}
	return total, nil
}

// ValidateMergeTags checks the spec §3 invariant that every segment being
// merged together carries identical tags, returning ErrInconsistentMergeTags
// if not.
func ValidateMergeTags(members []Member) error {
	if len(members) == 0 {
		return nil
	}
	want := tagSet(members[0].Tags)
	for _, m := range members[1:] {
		if !tagSetEqual(want, tagSet(m.Tags)) {
			return ErrInconsistentMergeTags
		}
	}
	return nil
}

func tagSet(tags map[string]bool) map[string]bool {
	if tags == nil {
		return map[string]bool{}
	}
	return tags
}

func tagSetEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
