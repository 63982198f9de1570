package shard

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardstore/shardcore/formula"
	"github.com/shardstore/shardcore/graph"
	"github.com/shardstore/shardcore/hnsw"
	"github.com/shardstore/shardcore/segment"
	"github.com/shardstore/shardcore/vectype"
)

func testSegConfig() segment.Config {
	return segment.Config{
		VectorType: vectype.Type{Kind: vectype.DenseF32, Dimension: 4},
		Similarity: vectype.SimilarityDot,
		HNSW:       hnsw.DefaultConfig(),
		Alignment:  8,
	}
}

func buildSeg(t *testing.T, dir, key string) *segment.Segment {
	t.Helper()
	s, err := segment.Create(dir, []segment.Input{
		{Key: key, DeletionKey: key, Vectors: [][]float32{{1, 0, 0, 0}}},
	}, testSegConfig())
	require.NoError(t, err)
	return s
}

func TestShardVectorSearchAcrossMembers(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSeg(t, filepath.Join(dir, "s1"), "res1/p0")
	s2 := buildSeg(t, filepath.Join(dir, "s2"), "res2/p0")
	defer s1.Close()
	defer s2.Close()

	sh := New([]Member{{Segment: s1}, {Segment: s2}}, nil)
	items, err := sh.VectorSearch([]float32{1, 0, 0, 0}, 5, 50, nil, formula.All(), nil, true, segment.NoMinScore)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestShardApplyDeletionAffectsOnlyMatchingSegment(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSeg(t, filepath.Join(dir, "s1"), "res1/p0")
	s2 := buildSeg(t, filepath.Join(dir, "s2"), "res2/p0")
	defer s1.Close()
	defer s2.Close()

	sh := New([]Member{{Segment: s1}, {Segment: s2}}, nil)
	n := sh.ApplyDeletion("res1/p0", false)
	assert.Equal(t, 1, n)

	items, err := sh.VectorSearch([]float32{1, 0, 0, 0}, 5, 50, nil, formula.All(), nil, false, segment.NoMinScore)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "res2/p0", items[0].Key)
}

func TestShardSpaceUsageSumsMembers(t *testing.T) {
	dir := t.TempDir()
	s1 := buildSeg(t, filepath.Join(dir, "s1"), "res1/p0")
	defer s1.Close()

	sh := New([]Member{{Segment: s1}}, nil)
	usage, err := sh.SpaceUsage()
	require.NoError(t, err)
	assert.Greater(t, usage, int64(0))
}

func TestValidateMergeTagsRejectsMismatch(t *testing.T) {
	members := []Member{
		{Tags: map[string]bool{"primary": true}},
		{Tags: map[string]bool{"secondary": true}},
	}
	err := ValidateMergeTags(members)
	assert.ErrorIs(t, err, ErrInconsistentMergeTags)
}

func TestValidateMergeTagsAcceptsIdenticalTags(t *testing.T) {
	members := []Member{
		{Tags: map[string]bool{"primary": true}},
		{Tags: map[string]bool{"primary": true}},
	}
	assert.NoError(t, ValidateMergeTags(members))
}

func TestShardGraphSearchAllAndNonePrefilter(t *testing.T) {
	store, err := graph.Open("")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.AddTriple(graph.Triple{Source: "alice", Relation: "knows", Dest: "bob"}))

	sh := New(nil, store)
	q := graph.Path{Source: &graph.NodeFilter{Value: "alice", Match: graph.Exact(graph.LocationFull)}}

	response, err := sh.GraphSearch(q, graph.ShapePaths, 0, formula.All())
	require.NoError(t, err)
	assert.Len(t, response.Paths, 1)

	response, err = sh.GraphSearch(q, graph.ShapePaths, 0, formula.None())
	require.NoError(t, err)
	assert.Nil(t, response.Nodes)
	assert.Nil(t, response.Paths)
}

func TestShardGraphSearchSomePrefilterRestrictsByResourceField(t *testing.T) {
	store, err := graph.Open("")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.AddTriple(graph.Triple{
		Source: "alice", Relation: "knows", Dest: "bob",
		ResourceID: "res1", FieldID: "body/summary",
	}))
	require.NoError(t, store.AddTriple(graph.Triple{
		Source: "alice", Relation: "knows", Dest: "carol",
		ResourceID: "res2", FieldID: "body/summary",
	}))

	sh := New(nil, store)
	q := graph.Path{Source: &graph.NodeFilter{Value: "alice", Match: graph.Exact(graph.LocationFull)}}
	prefilter := formula.Some([]formula.FieldID{{ResourceUUID: "res1", FieldPath: "body"}})

	response, err := sh.GraphSearch(q, graph.ShapePaths, 0, prefilter)
	require.NoError(t, err)
	require.Len(t, response.Paths, 1)
	assert.Equal(t, "bob", response.Paths[0].Dest)
}
