package vectorsearch

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardstore/shardcore/formula"
	"github.com/shardstore/shardcore/hnsw"
	"github.com/shardstore/shardcore/segment"
	"github.com/shardstore/shardcore/vectype"
)

func testConfig() segment.Config {
	return segment.Config{
		VectorType: vectype.Type{Kind: vectype.DenseF32, Dimension: 4},
		Similarity: vectype.SimilarityDot,
		HNSW:       hnsw.DefaultConfig(),
		Alignment:  8,
	}
}

func buildSegment(t *testing.T, dir string, prefix string, n int) *segment.Segment {
	t.Helper()
	inputs := make([]segment.Input, n)
	for i := 0; i < n; i++ {
		v := make([]float32, 4)
		v[i%4] = 1
		inputs[i] = segment.Input{
			Key:         fmt.Sprintf("%s/p%d", prefix, i),
			DeletionKey: fmt.Sprintf("%s/p%d", prefix, i),
			Vectors:     [][]float32{v},
		}
	}
	s, err := segment.Create(dir, inputs, testConfig())
	require.NoError(t, err)
	return s
}

func TestSearchMergesAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSegment(t, filepath.Join(dir, "s1"), "res1", 10)
	s2 := buildSegment(t, filepath.Join(dir, "s2"), "res2", 10)
	defer s1.Close()
	defer s2.Close()

	vs := New([]SegmentHandle{{Segment: s1}, {Segment: s2}})
	items, err := vs.Search([]float32{1, 0, 0, 0}, 5, 50, nil, formula.All(), nil, false, segment.NoMinScore)
	require.NoError(t, err)
	require.NotEmpty(t, items)
}

func TestSearchNonePrefilterShortCircuits(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSegment(t, filepath.Join(dir, "s1"), "res1", 5)
	defer s1.Close()

	vs := New([]SegmentHandle{{Segment: s1}})
	items, err := vs.Search([]float32{1, 0, 0, 0}, 5, 50, nil, formula.None(), nil, false, segment.NoMinScore)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSearchSomePrefilterRestrictsToKeys(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSegment(t, filepath.Join(dir, "s1"), "res1", 5)
	defer s1.Close()

	vs := New([]SegmentHandle{{Segment: s1}})
	prefilter := formula.Some([]formula.FieldID{{ResourceUUID: "res1", FieldPath: "/p0"}})
	items, err := vs.Search([]float32{1, 0, 0, 0}, 5, 50, nil, prefilter, nil, false, segment.NoMinScore)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "res1/p0", items[0].Key)
}

func TestComposeFormulaRejectsOrRootWithPrefilter(t *testing.T) {
	f := &formula.Formula{Operator: formula.OpOr}
	f.Add(formula.Label("a"))
	_, err := composeFormula(f, formula.Some([]formula.FieldID{{ResourceUUID: "r", FieldPath: "/p"}}))
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTagExprMatching(t *testing.T) {
	tags := map[string]bool{"primary": true}
	assert.True(t, And(Leaf("primary"), Not(Leaf("stale"))).Matches(tags))
	assert.False(t, Or(Leaf("stale"), Leaf("archived")).Matches(tags))
}

func TestFsscDedupKeepsHigherScore(t *testing.T) {
	f := NewFssc(2, false)
	f.Add(Item{Key: "a", Score: 1.0, VectorBytes: []byte{1, 2, 3}})
	f.Add(Item{Key: "a-dup", Score: 2.0, VectorBytes: []byte{1, 2, 3}})
	f.Add(Item{Key: "b", Score: 0.5, VectorBytes: []byte{4, 5, 6}})
	items := f.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a-dup", items[0].Key)
}

func TestFsscWithDuplicatesKeepsEveryCandidate(t *testing.T) {
	f := NewFssc(5, true)
	f.Add(Item{Key: "a", Score: 1.0, VectorBytes: []byte{1, 2, 3}})
	f.Add(Item{Key: "a-dup", Score: 2.0, VectorBytes: []byte{1, 2, 3}})
	items := f.Items()
	require.Len(t, items, 2)
}

func TestSearchWithDuplicatesSurfacesBothCopies(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSegment(t, filepath.Join(dir, "s1"), "res1", 1)
	s2 := buildSegment(t, filepath.Join(dir, "s2"), "res1", 1) // same key/vector bytes, overlapping ingestion
	defer s1.Close()
	defer s2.Close()

	vs := New([]SegmentHandle{{Segment: s1}, {Segment: s2}})

	dup, err := vs.Search([]float32{1, 0, 0, 0}, 5, 50, nil, formula.All(), nil, true, segment.NoMinScore)
	require.NoError(t, err)
	assert.Len(t, dup, 2)

	deduped, err := vs.Search([]float32{1, 0, 0, 0}, 5, 50, nil, formula.All(), nil, false, segment.NoMinScore)
	require.NoError(t, err)
	assert.Len(t, deduped, 1)
}

func TestSearchMultiVectorRescoresCandidates(t *testing.T) {
	dir := t.TempDir()
	inputs := []segment.Input{
		{Key: "p0", Vectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}},
		{Key: "p1", Vectors: [][]float32{{0, 0, 1, 0}}},
	}
	s, err := segment.Create(filepath.Join(dir, "s1"), inputs, testConfig())
	require.NoError(t, err)
	defer s.Close()

	vs := New([]SegmentHandle{{Segment: s}})
	items, err := vs.SearchMultiVector([][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, 2, 50, nil, formula.All(), nil, segment.NoMinScore)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "p0", items[0].Key)
}

func TestSearchMultiVectorDropsCandidatesAtOrBelowMinScore(t *testing.T) {
	dir := t.TempDir()
	inputs := []segment.Input{
		{Key: "p0", Vectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}},
		{Key: "p1", Vectors: [][]float32{{0, 0, 1, 0}}},
	}
	s, err := segment.Create(filepath.Join(dir, "s1"), inputs, testConfig())
	require.NoError(t, err)
	defer s.Close()

	vs := New([]SegmentHandle{{Segment: s}})
	items, err := vs.SearchMultiVector([][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, 2, 50, nil, formula.All(), nil, 2.0)
	require.NoError(t, err)
	assert.Empty(t, items)
}
