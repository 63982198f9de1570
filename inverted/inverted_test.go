package inverted

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardstore/shardcore/formula"
)

func buildSample() *Indexes {
	idx := New(5)
	idx.AddLabel("/e/PERSON", 0)
	idx.AddLabel("/e/PERSON", 2)
	idx.AddLabel("/e/ORG", 1)
	idx.AddLabel("/e/ORG", 3)
	idx.AddLabel("/l/en", 0)
	idx.AddLabel("/l/en", 1)
	idx.AddLabel("/l/en", 4)
	idx.AddDeletionKey("res1/field1", 0)
	idx.AddDeletionKey("res1/field1", 1)
	idx.AddDeletionKey("res2/field1", 2)
	return idx
}

func TestFilterEmptyFormulaMeansNoRestriction(t *testing.T) {
	idx := buildSample()
	assert.Nil(t, idx.Filter(formula.New()))
}

func TestFilterLabelAnd(t *testing.T) {
	idx := buildSample()
	f := formula.New()
	f.Add(formula.Label("/l/en"))
	f.Add(formula.Label("/e/PERSON"))
	got := idx.Filter(f)
	require.NotNil(t, got)
	assert.Equal(t, []uint32{0}, got.Iter())
}

func TestFilterLabelOr(t *testing.T) {
	idx := buildSample()
	f := &formula.Formula{Operator: formula.OpOr}
	f.Add(formula.Label("/e/PERSON"))
	f.Add(formula.Label("/e/ORG"))
	got := idx.Filter(f)
	assert.Equal(t, []uint32{0, 1, 2, 3}, got.Iter())
}

func TestFilterNegatedLabel(t *testing.T) {
	idx := buildSample()
	f := formula.New()
	f.Add(formula.NotLabel("/l/en"))
	got := idx.Filter(f)
	assert.Equal(t, []uint32{2, 3}, got.Iter())
}

func TestFilterKeySetAtom(t *testing.T) {
	idx := buildSample()
	f := formula.New()
	f.Add(formula.KeySet([]string{"res1/field1"}))
	got := idx.Filter(f)
	assert.Equal(t, []uint32{0, 1}, got.Iter())
}

func TestIDsForDeletionKeyPrefix(t *testing.T) {
	idx := buildSample()
	got := idx.IDsForDeletionKey("res", true)
	assert.Equal(t, []uint32{0, 1, 2}, got)
}

func TestFacetPrefixMatch(t *testing.T) {
	idx := New(3)
	idx.AddLabel("/classification.labels/topic/news", 0)
	idx.AddLabel("/classification.labels/topic/sports", 1)
	idx.AddLabel("/classification.labels/other", 2)
	f := formula.New()
	f.Add(formula.FacetPrefix("/classification.labels/topic"))
	got := idx.Filter(f)
	assert.Equal(t, []uint32{0, 1}, got.Iter())
}

func TestWriteReadRoundTrip(t *testing.T) {
	idx := buildSample()
	dir := t.TempDir()
	labelsPath := filepath.Join(dir, "labels.idx")
	deletionsPath := filepath.Join(dir, "deletions.idx")
	require.NoError(t, idx.WriteFiles(labelsPath, deletionsPath))

	loaded, err := ReadFiles(labelsPath, deletionsPath)
	require.NoError(t, err)
	assert.Equal(t, idx.Labels, loaded.Labels)
	assert.Equal(t, idx.DeletionKeys, loaded.DeletionKeys)
}
