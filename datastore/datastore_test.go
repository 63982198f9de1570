package datastore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardstore/shardcore/vectype"
)

func vt3() vectype.Type { return vectype.Type{Kind: vectype.DenseF32, Dimension: 3} }

func TestCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	paragraphs := []Paragraph{
		{Key: "res1/field1/0-10", Metadata: []byte("meta0"), Labels: []string{"/e/PERSON"}, Vectors: [][]float32{{1, 0, 0}}},
		{Key: "res1/field1/10-20", Metadata: []byte("meta1"), Labels: []string{"/e/ORG", "/l/en"}, Vectors: [][]float32{{0, 1, 0}, {0, 0, 1}}},
	}
	ds, err := Create(filepath.Join(dir, "nodes.kv"), paragraphs, vt3(), 8)
	require.NoError(t, err)
	defer ds.Close()

	require.Equal(t, 2, ds.StoredParagraphCount())
	require.Equal(t, 3, ds.StoredVectorCount())

	p0, err := ds.GetParagraph(0)
	require.NoError(t, err)
	require.Equal(t, "res1/field1/0-10", p0.Key)
	require.Equal(t, []byte("meta0"), p0.Metadata)
	require.Equal(t, []string{"/e/PERSON"}, p0.Labels)
	require.Equal(t, [][]float32{{1, 0, 0}}, p0.Vectors)

	p1, err := ds.GetParagraph(1)
	require.NoError(t, err)
	require.Len(t, p1.Vectors, 2)

	start, end, err := ds.VectorRange(1)
	require.NoError(t, err)
	require.Equal(t, 1, start)
	require.Equal(t, 3, end)

	owner, err := ds.ParagraphOf(2)
	require.NoError(t, err)
	require.Equal(t, 1, owner)

	v, err := ds.GetVector(2)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 1}, v)

	reopened, err := Open(filepath.Join(dir, "nodes.kv"), vt3())
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, ds.StoredParagraphCount(), reopened.StoredParagraphCount())
}

func TestMergePreservesFirstOperantWhenNoDeletions(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "a.kv"), []Paragraph{
		{Key: "a0", Vectors: [][]float32{{1, 0, 0}}},
		{Key: "a1", Vectors: [][]float32{{0, 1, 0}}},
	}, vt3(), 8)
	require.NoError(t, err)
	defer a.Close()

	b, err := Create(filepath.Join(dir, "b.kv"), []Paragraph{
		{Key: "b0", Vectors: [][]float32{{0, 0, 1}}},
		{Key: "b1", Vectors: [][]float32{{1, 1, 0}}},
	}, vt3(), 8)
	require.NoError(t, err)
	defer b.Close()

	merged, result, err := Merge(filepath.Join(dir, "merged.kv"), []MergeOperant{
		{Store: a, Alive: func(int) bool { return true }},
		{Store: b, Alive: func(p int) bool { return p != 0 }}, // b0 deleted
	}, vt3(), 8)
	require.NoError(t, err)
	defer merged.Close()

	require.True(t, result.HasDeletions)
	require.Equal(t, []int{2, 1}, result.KeptPerOperant)
	require.Equal(t, 3, merged.StoredParagraphCount())

	p0, err := merged.GetParagraph(0)
	require.NoError(t, err)
	require.Equal(t, "a0", p0.Key)
	p1, err := merged.GetParagraph(1)
	require.NoError(t, err)
	require.Equal(t, "a1", p1.Key)
	p2, err := merged.GetParagraph(2)
	require.NoError(t, err)
	require.Equal(t, "b1", p2.Key)

	require.Equal(t, map[int]int{0: 0, 1: 1}, result.Remap[0])
	require.Equal(t, map[int]int{1: 2}, result.Remap[1])
}

func TestMergeNoDeletionsReportsClean(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "a.kv"), []Paragraph{
		{Key: "a0", Vectors: [][]float32{{1, 0, 0}}},
	}, vt3(), 8)
	require.NoError(t, err)
	defer a.Close()

	merged, result, err := Merge(filepath.Join(dir, "merged.kv"), []MergeOperant{
		{Store: a, Alive: func(int) bool { return true }},
	}, vt3(), 8)
	require.NoError(t, err)
	defer merged.Close()

	require.False(t, result.HasDeletions)
	require.Equal(t, 1, merged.StoredParagraphCount())
}

func TestWillNeedOnValidAndInvalidAddress(t *testing.T) {
	dir := t.TempDir()
	ds, err := Create(filepath.Join(dir, "nodes.kv"), []Paragraph{
		{Key: "a0", Vectors: [][]float32{{1, 0, 0}}},
	}, vt3(), 8)
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.WillNeed(0))
	require.Error(t, ds.WillNeed(5))
}
