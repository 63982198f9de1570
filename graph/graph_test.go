package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSample(t *testing.T, s *Store) {
	t.Helper()
	triples := []Triple{
		{Source: "alice", Relation: "knows", Dest: "bob", Facets: []string{"org/eng/infra"}},
		{Source: "bob", Relation: "knows", Dest: "carol", Facets: []string{"org/eng/platform"}},
		{Source: "alice", Relation: "manages", Dest: "dave"},
		{Source: "carol", Relation: "manages", Dest: "alice", Facets: []string{"org/sales"}},
	}
	for _, tr := range triples {
		require.NoError(t, s.AddTriple(tr))
	}
}

// seedGeoSample seeds triples carrying node types/subtypes, used by tests
// exercising NodeFilter.NodeType/NodeSubtype and RelationFilter.RelationType.
func seedGeoSample(t *testing.T, s *Store) {
	t.Helper()
	triples := []Triple{
		{
			Source: "companyX", SourceType: NodeTypeEntity, SourceSubtype: "ORG",
			Relation: "locatedIn", RelationType: RelationTypeEntity,
			Dest: "New York", DestType: NodeTypeEntity, DestSubtype: "PLACE",
		},
		{
			Source: "companyY", SourceType: NodeTypeEntity, SourceSubtype: "ORG",
			Relation: "locatedIn", RelationType: RelationTypeEntity,
			Dest: "UK", DestType: NodeTypeEntity, DestSubtype: "PLACE",
		},
		{
			Source: "companyX", SourceType: NodeTypeEntity, SourceSubtype: "ORG",
			Relation: "sponsors", RelationType: RelationTypeSynonym,
			Dest: "companyY", DestType: NodeTypeEntity, DestSubtype: "ORG",
		},
	}
	for _, tr := range triples {
		require.NoError(t, s.AddTriple(tr))
	}
}

func TestPathExactSourceMatch(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Path{Source: &NodeFilter{Value: "alice", Match: Exact(LocationFull)}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	assert.Len(t, triples, 2)
}

func TestPathRelationAnchorMatch(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Path{Relation: &RelationFilter{Value: "knows", Match: Exact(LocationFull)}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	assert.Len(t, triples, 2)
}

func TestPathPrefixDestinationMatch(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Path{Destination: &NodeFilter{Value: "ca", Match: Exact(LocationPrefix)}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "carol", triples[0].Dest)
}

func TestPathUndirectedMatchesBothOrientations(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Path{
		Source:      &NodeFilter{Value: "alice", Match: Exact(LocationFull)},
		Destination: &NodeFilter{Value: "dave", Match: Exact(LocationFull)},
		Undirected:  true,
	}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "manages", triples[0].Relation)

	qSwap := Path{
		Source:      &NodeFilter{Value: "dave", Match: Exact(LocationFull)},
		Destination: &NodeFilter{Value: "alice", Match: Exact(LocationFull)},
		Undirected:  true,
	}
	triplesSwap, err := Eval(s, qSwap)
	require.NoError(t, err)
	assert.Equal(t, triples, triplesSwap)
}

func TestPathNodeSubtypeSearchUndirected(t *testing.T) {
	s := newTestStore(t)
	seedGeoSample(t, s)

	q := Path{Source: &NodeFilter{NodeSubtype: "PLACE"}, Undirected: true}
	response, err := Respond(s, q, ShapeNodes, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"New York", "UK"}, response.Nodes)
}

func TestPathRelationTypeRestrictsToSynonymEdges(t *testing.T) {
	s := newTestStore(t)
	seedGeoSample(t, s)

	q := Path{Relation: &RelationFilter{RelationType: RelationTypeSynonym}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "sponsors", triples[0].Relation)
}

func TestBoolAndIntersectsChildren(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := BoolAnd{Children: []Query{
		Path{Relation: &RelationFilter{Value: "manages", Match: Exact(LocationFull)}},
		Path{Source: &NodeFilter{Value: "alice", Match: Exact(LocationFull)}},
	}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "dave", triples[0].Dest)
}

func TestBoolOrUnionsChildren(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := BoolOr{Children: []Query{
		Path{Source: &NodeFilter{Value: "alice", Match: Exact(LocationFull)}},
		Path{Source: &NodeFilter{Value: "bob", Match: Exact(LocationFull)}},
	}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	assert.Len(t, triples, 3)
}

func TestBoolNotComplementsAgainstFullSet(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := BoolNot{Child: Path{Relation: &RelationFilter{Value: "knows", Match: Exact(LocationFull)}}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	for _, tr := range triples {
		assert.NotEqual(t, "knows", tr.Relation)
	}
	assert.Len(t, triples, 2)
}

func TestBoolNotWithNoOperandIsInvalidQuery(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	_, err := Eval(s, BoolNot{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestEvalNilQueryIsInvalidQuery(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	_, err := Eval(s, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFacetMatchesHierarchicalPrefix(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Facet{Facet: "org/eng"}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	assert.NotEmpty(t, triples)
	for _, tr := range triples {
		assert.True(t, tr.Source == "alice" || tr.Dest == "alice" || tr.Source == "bob" || tr.Dest == "bob")
	}
}

func TestFacetFilterCountsMatchSeedScenario(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddTriple(Triple{Source: "r1", Relation: "has", Dest: "v1"}))
	require.NoError(t, s.AddTriple(Triple{Source: "r2", Relation: "has", Dest: "v2", Facets: []string{"/g/u"}}))
	require.NoError(t, s.AddTriple(Triple{Source: "r3", Relation: "has", Dest: "v3", Facets: []string{"/g/da/mytask"}}))

	under, err := Eval(s, Facet{Facet: "/g"})
	require.NoError(t, err)
	assert.Len(t, under, 2)

	underDa, err := Eval(s, Facet{Facet: "/g/da"})
	require.NoError(t, err)
	assert.Len(t, underDa, 1)

	notUnder, err := Eval(s, BoolNot{Child: Facet{Facet: "/g"}})
	require.NoError(t, err)
	assert.Len(t, notUnder, 1)
}

func TestFuzzyMatchAllowsEditDistance(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Path{Source: &NodeFilter{Value: "alce", Match: Fuzzy(LocationFull, 1)}}
	triples, err := Eval(s, q)
	require.NoError(t, err)
	assert.Len(t, triples, 2)
}

func TestDeprecatedFuzzyMatchesLikeDistanceOne(t *testing.T) {
	assert.Equal(t, Fuzzy(LocationFull, 1), DeprecatedFuzzy())
}

func TestDistanceMatchesKnownValues(t *testing.T) {
	assert.Equal(t, 3, Distance("kitten", "sitting"))
	assert.Equal(t, 0, Distance("same", "same"))
	assert.Equal(t, 4, Distance("", "dave"))
}

func TestWordsAndPrefixWordsMatching(t *testing.T) {
	assert.True(t, matchExact("senior staff engineer", "staff engineer", LocationWords))
	assert.False(t, matchExact("senior staff engineer", "staf engine", LocationWords))
	assert.True(t, matchExact("senior staff engineer", "staf engine", LocationPrefixWords))
}

func TestFacetsOfReturnsUnionOfCarryingTriples(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	facets, err := s.FacetsOf("alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"org/eng/infra", "org/sales"}, facets)
}

func TestRespondShapesNodesAndRelationsWithTopK(t *testing.T) {
	s := newTestStore(t)
	seedSample(t, s)

	q := Path{Relation: &RelationFilter{Value: "knows", Match: Exact(LocationFull)}}
	response, err := Respond(s, q, ShapeNodes, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, response.Nodes)

	response, err = Respond(s, BoolOr{Children: []Query{
		Path{Relation: &RelationFilter{Value: "knows", Match: Exact(LocationFull)}},
		Path{Relation: &RelationFilter{Value: "manages", Match: Exact(LocationFull)}},
	}}, ShapeRelations, 1)
	require.NoError(t, err)
	assert.Len(t, response.Relations, 1)

	response, err = Respond(s, q, ShapePaths, 0)
	require.NoError(t, err)
	assert.Len(t, response.Paths, 2)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, response.Nodes)
	assert.Equal(t, []string{"knows"}, response.Relations)
}
