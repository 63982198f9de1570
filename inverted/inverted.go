// Package inverted implements the per-segment label and deletion-key
// postings and the Formula-to-BitSet compiler used to turn a boolean filter
// into the paragraph-address bitset a vector search intersects with its
// alive set (spec §4.2).
package inverted

import (
	"sort"
	"strings"

	"github.com/shardstore/shardcore/bitset"
	"github.com/shardstore/shardcore/formula"
)

// Indexes holds the two posting families a segment persists alongside its
// DataStore: labels (arbitrary facet/entity/language tags attached to a
// paragraph) and deletion keys (the resource/field key a paragraph belongs
// to, used to drop a whole resource's paragraphs by key).
type Indexes struct {
	Labels       map[string][]uint32
	DeletionKeys map[string][]uint32
	n            int // paragraph count, needed to size complement bitsets
}

// New creates an empty Indexes sized for n paragraphs.
func New(n int) *Indexes {
	return &Indexes{
		Labels:       make(map[string][]uint32),
		DeletionKeys: make(map[string][]uint32),
		n:            n,
	}
}

// AddLabel records that paragraphAddr carries label. Callers must add
// paragraphs in ascending address order (as they are at segment create) so
// postings stay sorted without an explicit sort pass.
func (idx *Indexes) AddLabel(label string, paragraphAddr uint32) {
	idx.Labels[label] = append(idx.Labels[label], paragraphAddr)
}

// AddDeletionKey records that paragraphAddr belongs to the given external
// key (spec's resource_uuid+field_path key, see formula.FieldID.Key).
func (idx *Indexes) AddDeletionKey(key string, paragraphAddr uint32) {
	idx.DeletionKeys[key] = append(idx.DeletionKeys[key], paragraphAddr)
}

// Sort re-sorts every posting, used after a merge that may have appended
// postings from multiple producers out of global order (within one producer
// order is preserved, but the merged file as a whole is not globally
// resorted, so a label present in two producers has its posting built by
// concatenation and must be sorted once).
func (idx *Indexes) Sort() {
	for k, p := range idx.Labels {
		sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
		idx.Labels[k] = p
	}
	for k, p := range idx.DeletionKeys {
		sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
		idx.DeletionKeys[k] = p
	}
}

// IDsForDeletionKey returns every paragraph address filed under a deletion
// key, matching either an exact key or, when prefix is true, every key
// carrying keyOrPrefix as a prefix (spec's "delete by key_prefix").
func (idx *Indexes) IDsForDeletionKey(keyOrPrefix string, prefix bool) []uint32 {
	if !prefix {
		return idx.DeletionKeys[keyOrPrefix]
	}
	var out []uint32
	for k, posting := range idx.DeletionKeys {
		if strings.HasPrefix(k, keyOrPrefix) {
			out = bitset.UnionPostings(out, posting)
		}
	}
	return out
}

// facetMatch reports whether label falls under the `/`-separated
// hierarchical facet prefix, i.e. prefix must end exactly at a path
// component boundary ("/a/b" matches "/a/b/c" but not "/a/bc").
func facetMatch(label, prefix string) bool {
	if !strings.HasPrefix(label, prefix) {
		return false
	}
	if len(label) == len(prefix) {
		return true
	}
	return label[len(prefix)] == '/'
}

// postingForFacetPrefix unions every label posting whose label falls under
// the given facet prefix.
func (idx *Indexes) postingForFacetPrefix(prefix string) []uint32 {
	var out []uint32
	for label, posting := range idx.Labels {
		if facetMatch(label, prefix) {
			out = bitset.UnionPostings(out, posting)
		}
	}
	return out
}

// Filter compiles a formula into the paragraph-address bitset it selects. A
// nil or empty formula means "no restriction" and returns nil; callers
// should treat a nil result as "every paragraph qualifies" rather than
// intersecting with it.
func (idx *Indexes) Filter(f *formula.Formula) *bitset.BitSet {
	if f.Empty() {
		return nil
	}

	result := bitset.New(idx.n, f.Operator == formula.OpAnd)
	for _, atom := range f.Atoms {
		atomSet := idx.atomBitset(atom)
		if atom.Negated {
			atomSet = idx.complement(atomSet)
		}
		switch f.Operator {
		case formula.OpAnd:
			result.IntersectWith(atomSet)
		case formula.OpOr:
			result.Union(atomSet)
		}
	}
	return result
}

func (idx *Indexes) complement(b *bitset.BitSet) *bitset.BitSet {
	full := bitset.New(idx.n, true)
	for _, addr := range b.Iter() {
		full.Remove(int(addr))
	}
	return full
}

func (idx *Indexes) atomBitset(atom formula.Atom) *bitset.BitSet {
	switch atom.Kind {
	case formula.AtomLabel:
		return bitset.FromPosting(idx.n, idx.Labels[atom.Label])
	case formula.AtomKeySet:
		var posting []uint32
		for _, k := range atom.Keys {
			posting = bitset.UnionPostings(posting, idx.DeletionKeys[k])
		}
		return bitset.FromPosting(idx.n, posting)
	case formula.AtomFacetPrefix:
		return bitset.FromPosting(idx.n, idx.postingForFacetPrefix(atom.Facet))
	default:
		return bitset.New(idx.n, false)
	}
}
