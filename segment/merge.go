package segment

import (
	"sort"

	"github.com/shardstore/shardcore/bitset"
	"github.com/shardstore/shardcore/datastore"
	"github.com/shardstore/shardcore/hnsw"
	"github.com/shardstore/shardcore/inverted"
)

// Merge combines operants into a brand new segment at dir, garbage-collecting
// every tombstoned paragraph (spec §4.3). Operants are sorted largest-first
// by paragraph count before merging: this maximizes the chance that the
// largest operant has no deletions, which lets the merge reuse its HNSW
// graph wholesale instead of rebuilding one from scratch (spec's ordering-
// preserving merge producing the largest/first-operant HNSW-reuse
// optimization). Callers retain ownership of the operants and must Close
// them once satisfied the merge succeeded.
func Merge(dir string, operants []*Segment, cfg Config) (*Segment, error) {
	for _, op := range operants {
		if op.Meta.VectorType != cfg.VectorType || op.Meta.Similarity != cfg.Similarity {
			return nil, ErrInconsistentMergeDataStore
		}
	}
	if err := validateOperantTags(operants); err != nil {
		return nil, err
	}

	sorted := make([]*Segment, len(operants))
	copy(sorted, operants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Meta.ParagraphCount > sorted[j].Meta.ParagraphCount
	})

	dsOperants := make([]datastore.MergeOperant, len(sorted))
	for i, op := range sorted {
		op := op
		dsOperants[i] = datastore.MergeOperant{
			Store: op.Data,
			Alive: func(p int) bool { return op.Alive.Test(p) },
		}
	}

	nodesPath, indexPath, labelsPath, deletionsPath, metaPath := paths(dir)
	mergedDS, result, err := datastore.Merge(nodesPath, dsOperants, cfg.VectorType, cfg.Alignment)
	if err != nil {
		return nil, err
	}

	mergedRetr := &retriever{ds: mergedDS, simFunc: cfg.Similarity.Func()}

	firstFullyKept := len(sorted) > 0 && result.KeptPerOperant[0] == sorted[0].Meta.ParagraphCount
	var graph *hnsw.RAMHnsw
	if firstFullyKept {
		graph = sorted[0].Graph
		graph.SetRetriever(mergedRetr)
		for v := sorted[0].Data.StoredVectorCount(); v < mergedDS.StoredVectorCount(); v++ {
			graph.Insert(uint32(v))
		}
	} else {
		graph = hnsw.NewRAMHnsw(cfg.HNSW, mergedRetr, nil)
		for v := 0; v < mergedDS.StoredVectorCount(); v++ {
			graph.Insert(uint32(v))
		}
	}

	idx := inverted.New(mergedDS.StoredParagraphCount())
	for oi, op := range sorted {
		remap := result.Remap[oi]
		for label, posting := range op.Indexes.Labels {
			for _, old := range posting {
				if newAddr, ok := remap[int(old)]; ok {
					idx.AddLabel(label, uint32(newAddr))
				}
			}
		}
		for key, posting := range op.Indexes.DeletionKeys {
			for _, old := range posting {
				if newAddr, ok := remap[int(old)]; ok {
					idx.AddDeletionKey(key, uint32(newAddr))
				}
			}
		}
	}
	idx.Sort()

	if err := hnsw.WriteFile(indexPath, graph); err != nil {
		return nil, err
	}
	if err := idx.WriteFiles(labelsPath, deletionsPath); err != nil {
		return nil, err
	}
	meta := Meta{
		VectorType:       cfg.VectorType,
		Similarity:       cfg.Similarity,
		NormalizeVectors: cfg.NormalizeVectors,
		ParagraphCount:   mergedDS.StoredParagraphCount(),
		VectorCount:      mergedDS.StoredVectorCount(),
		Tags:             cfg.Tags,
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return nil, err
	}

	return &Segment{
		dir:     dir,
		cfg:     cfg,
		Meta:    meta,
		Data:    mergedDS,
		Graph:   graph,
		Indexes: idx,
		Alive:   bitset.New(mergedDS.StoredParagraphCount(), true),
		retr:    mergedRetr,
	}, nil
}

// validateOperantTags enforces the spec §3 "Tags" invariant (spec §4.5.3
// step 2, InconsistentMergeSegmentTags) directly against the public merge
// ABI, duplicating shard.ValidateMergeTags' check at the segment layer so
// merge_segments rejects a tag mismatch even when called without going
// through the shard facade.
func validateOperantTags(operants []*Segment) error {
	if len(operants) == 0 {
		return nil
	}
	want := tagSet(operants[0].Meta.Tags)
	for _, op := range operants[1:] {
		if !tagSetEqual(want, tagSet(op.Meta.Tags)) {
			return ErrInconsistentMergeTags
		}
	}
	return nil
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set
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
