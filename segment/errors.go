package segment

import "errors"

// ErrDimensionMismatch is the spec §7 "ConfigInconsistent" error kind,
// raised when a search query's dimension does not match the segment's
// configured vector type (spec §7 point 7, "Dimension guard").
var ErrDimensionMismatch = errors.New("segment: query vector dimension does not match configured vector type")

// ErrConfigInconsistent is the spec §7 "ConfigInconsistent" error kind for
// configuration-shape violations other than a dimension mismatch, such as a
// paragraph carrying more than one vector under data store v1 (spec §4.5.3
// step 4, "v1 is single-vector").
var ErrConfigInconsistent = errors.New("segment: configuration inconsistent with data store layout")

// ErrInconsistentMergeDataStore is the spec §7 "InconsistentMergeDataStore"
// error kind: merge operants must share the same vector type and similarity
// function (spec §4.5.3 step 4).
var ErrInconsistentMergeDataStore = errors.New("segment: merge operants have incompatible data store layouts")

// ErrInconsistentMergeTags is the spec §7 "InconsistentMergeTags" error
// kind, enforced here directly so the public merge_segments ABI (spec §6.3)
// rejects a tag mismatch even when called without going through the shard
// facade. shard.ValidateMergeTags enforces the same invariant again at the
// facade layer; see DESIGN.md.
var ErrInconsistentMergeTags = errors.New("segment: merge operants do not share identical tags")
