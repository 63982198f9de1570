// Package segment implements the append-merge segment lifecycle for the
// dense vector index: Create, Open, Search (with the brute-force/HNSW
// crossover planner) and Merge with deletion garbage collection (spec §4.1,
// §4.3, §4.5).
package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shardstore/shardcore/bitset"
	"github.com/shardstore/shardcore/datastore"
	"github.com/shardstore/shardcore/formula"
	"github.com/shardstore/shardcore/hnsw"
	"github.com/shardstore/shardcore/inverted"
	"github.com/shardstore/shardcore/vectype"
)

// HNSWCostFactor is the constant the search planner weighs an HNSW
// traversal's expected cost against when deciding whether a heavily
// restricted query is cheaper to answer by scanning the candidate set
// directly (spec §4.5, original_source's `HNSW_COST_FACTOR`).
const HNSWCostFactor = 200

// Config fixes a segment's vector encoding, similarity, and HNSW tuning for
// its entire lifetime (spec invariant: a segment's vector type never
// changes).
type Config struct {
	VectorType       vectype.Type
	Similarity       vectype.Similarity
	NormalizeVectors bool
	HNSW             hnsw.Config
	Alignment        int
	ForceDataStoreV1 bool
	// Tags restricts which shard-level queries this segment participates in
	// (e.g. replication-group or partition tags), matched by a caller's
	// vectorsearch.TagExpr. Persisted into Meta so Open recovers them.
	Tags []string
}

// Input is one paragraph as supplied by a caller building or merging a
// segment: an external key, opaque metadata, the label set used for
// filtering, the deletion key it is filed under, and 1..N dense vectors.
type Input struct {
	Key         string
	Metadata    []byte
	Labels      []string
	DeletionKey string
	Vectors     [][]float32
}

// Meta is the small persisted record at meta.json: everything needed to
// reopen a segment's DataStore and HNSW graph without re-deriving them from
// the vectors themselves.
type Meta struct {
	VectorType       vectype.Type       `json:"vector_type"`
	Similarity       vectype.Similarity `json:"similarity"`
	NormalizeVectors bool               `json:"normalize_vectors"`
	ParagraphCount   int                `json:"paragraph_count"`
	VectorCount      int                `json:"vector_count"`
	Tags             []string           `json:"tags,omitempty"`
}

// Metadata is the supplemented VectorSegmentMetadata accessor (SPEC_FULL.md
// "Segment space-usage accounting"/"tags() accessor"): enough for the shard
// layer to make eviction and tag-filtering decisions without opening the
// segment's files.
type Metadata struct {
	Path    string
	Records int
	Tags    []string
}

// Metadata returns the segment's path, paragraph count, and tags.
func (s *Segment) Metadata() Metadata {
	return Metadata{Path: s.dir, Records: s.Meta.ParagraphCount, Tags: s.Meta.Tags}
}

// Segment is one open, in-memory view of a segment directory: its DataStore
// (mmap), HNSW graph, inverted indexes, and alive bitset.
type Segment struct {
	dir     string
	cfg     Config
	Meta    Meta
	Data    *datastore.DataStore
	Graph   *hnsw.RAMHnsw
	Indexes *inverted.Indexes
	Alive   *bitset.BitSet
	retr    *retriever // same object wired into Graph; mutated per-query to carry the live query vector
}

func paths(dir string) (nodes, index, labels, deletions, meta string) {
	return filepath.Join(dir, "nodes.kv"),
		filepath.Join(dir, "index.hnsw"),
		filepath.Join(dir, "labels.idx"),
		filepath.Join(dir, "deletions.idx"),
		filepath.Join(dir, "meta.json")
}

// retriever adapts a DataStore's vector bytes to hnsw.Retriever, recognizing
// hnsw.QueryAddr as "the live query vector" (spec's query-address trick,
// original_source segment.rs).
type retriever struct {
	ds      *datastore.DataStore
	simFunc func(a, b []byte) float32
	query   []byte
}

func (r *retriever) bytesOf(addr uint32) []byte {
	if addr == hnsw.QueryAddr {
		return r.query
	}
	b, err := r.ds.GetVectorBytes(int(addr))
	if err != nil {
		return nil
	}
	return b
}

func (r *retriever) Similarity(a, b uint32) float32 {
	return r.simFunc(r.bytesOf(a), r.bytesOf(b))
}

// Close releases the segment's mmap resources.
func (s *Segment) Close() error {
	return s.Data.Close()
}

// SpaceUsage reports the on-disk size of every file making up the segment
// (spec's supplemented SpaceUsage accounting, see SPEC_FULL.md).
func (s *Segment) SpaceUsage() (int64, error) {
	nodes, index, labels, deletions, meta := paths(s.dir)
	var total int64
	for _, p := range []string{nodes, index, labels, deletions, meta} {
		fi, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("segment: stat %s: %w", p, err)
		}
		total += fi.Size()
	}
	return total, nil
}

// ApplyDeletion tombstones every paragraph filed under the given deletion
// key (exact match) or, when prefix is true, under any key that starts with
// it as a plain string prefix ("res1" also matches "res10"). Deleting a key with no matching paragraphs is a
// no-op, not an error (spec §7). The tombstone is in-memory only: it is
// compacted away permanently at the next Merge (spec §4.2 "alive bitset ...
// rebuilt all-ones on segment open, compacted at merge").
func (s *Segment) ApplyDeletion(key string, prefix bool) int {
	ids := s.Indexes.IDsForDeletionKey(key, prefix)
	for _, id := range ids {
		s.Alive.Remove(int(id))
	}
	return len(ids)
}
