// Package graph implements the relations path-query index: a small
// badger-backed triple store (standing in for spec §6.2's "opaque
// third-party text-index engine collaborator") plus a boolean path-query
// language compiler/executor (spec §4.7).
package graph

// MatchLocation is where within a string value a match must occur.
type MatchLocation int

const (
	// LocationFull requires the whole value to match.
	LocationFull MatchLocation = iota
	// LocationPrefix requires the filter value to be a prefix of the
	// candidate.
	LocationPrefix
	// LocationWords requires every whitespace-separated word of the filter
	// value to appear as a whole word in the candidate, in any order.
	LocationWords
	// LocationPrefixWords requires every whitespace-separated word of the
	// filter value to be a prefix of some word in the candidate.
	LocationPrefixWords
)

type matchKind int

const (
	kindExact matchKind = iota
	kindFuzzy
)

// MatchKind is the closed set of ways a NodeFilter or RelationFilter value
// may be compared against a stored value (spec §4.7).
type MatchKind struct {
	kind     matchKind
	location MatchLocation
	distance int // max Levenshtein distance, meaningful only when kind == kindFuzzy
}

// Exact builds an exact-match kind at the given location.
func Exact(location MatchLocation) MatchKind {
	return MatchKind{kind: kindExact, location: location}
}

// Fuzzy builds a fuzzy-match kind allowing up to distance edits at the given
// location.
func Fuzzy(location MatchLocation, distance int) MatchKind {
	return MatchKind{kind: kindFuzzy, location: location, distance: distance}
}

// DeprecatedFuzzy reproduces the legacy fuzzy-match kind that predates
// per-location fuzzy matching: always full-string, always distance 1 (spec's
// supplemented legacy compatibility feature, see SPEC_FULL.md).
func DeprecatedFuzzy() MatchKind {
	return Fuzzy(LocationFull, 1)
}

// NodeType is the open set of node kinds a triple's endpoint may carry
// (spec §3 glossary: "node := {value, type: enum{Entity,...}, subtype}").
// The zero value "" means unrestricted / untyped.
type NodeType string

// NodeTypeEntity is the one node type the spec names concretely.
const NodeTypeEntity NodeType = "Entity"

// RelationType is the open set of relation kinds a triple's edge may carry
// (spec §3 glossary: "relation := {label, type: enum{Synonym, Entity,...}}").
// The zero value "" means unrestricted / untyped.
type RelationType string

const (
	// RelationTypeSynonym marks a relation as a synonym edge.
	RelationTypeSynonym RelationType = "Synonym"
	// RelationTypeEntity marks a relation as an entity edge.
	RelationTypeEntity RelationType = "Entity"
)

// NodeFilter restricts a node (entity) value, type, and subtype in a path
// query. A zero Value, NodeType, or NodeSubtype leaves that dimension
// unrestricted.
type NodeFilter struct {
	Value       string
	NodeType    NodeType
	NodeSubtype string
	Match       MatchKind
}

// RelationFilter restricts a relation (edge label) value and type in a path
// query. A zero Value or RelationType leaves that dimension unrestricted.
type RelationFilter struct {
	Value        string
	RelationType RelationType
	Match        MatchKind
}

// Query is the path-query expression tree (spec §4.7): a Path leaf, boolean
// composition over sub-queries, or a Facet leaf.
type Query interface {
	isQuery()
}

// Path matches triples by an optional source filter, relation filter, and
// destination filter. A nil filter means "any value" at that position.
// Undirected compiles to the union of the forward and swapped-endpoint
// match (spec: "Path(A,r,B) ∨ Path(B,r,A)").
type Path struct {
	Source      *NodeFilter
	Relation    *RelationFilter
	Destination *NodeFilter
	Undirected  bool
}

func (Path) isQuery() {}

// BoolAnd matches triples satisfying every child query.
type BoolAnd struct{ Children []Query }

func (BoolAnd) isQuery() {}

// BoolOr matches triples satisfying any child query.
type BoolOr struct{ Children []Query }

func (BoolOr) isQuery() {}

// BoolNot matches triples that do not satisfy the child query, relative to
// the full set of stored triples.
type BoolNot struct{ Child Query }

func (BoolNot) isQuery() {}

// Facet matches triples that carry a facet at or under the given
// `/`-separated hierarchical prefix.
type Facet struct{ Facet string }

func (Facet) isQuery() {}

// Triple is one stored relation edge (spec §3 glossary: "graph triple
// (relations): {source_node, relation, destination_node, facets: set<string>,
// field_id, resource_id}"). SourceType/SourceSubtype and DestType/DestSubtype
// carry each endpoint's node type; RelationType carries the edge's relation
// type; FieldID and ResourceID locate the triple within the resource it was
// extracted from, for prefilter matching (spec §4.7.3).
type Triple struct {
	Source        string
	SourceType    NodeType
	SourceSubtype string
	Relation      string
	RelationType  RelationType
	Dest          string
	DestType      NodeType
	DestSubtype   string
	Facets        []string
	FieldID       string
	ResourceID    string
}

// tripleKey is a triple's comparable identity, used for set operations
// (intersection, union, complement). Facets is deliberately excluded: two
// otherwise-identical triples with different facet sets are still the same
// edge.
type tripleKey struct {
	source, relation, dest, resourceID string
}

func keyOf(t Triple) tripleKey {
	return tripleKey{source: t.Source, relation: t.Relation, dest: t.Dest, resourceID: t.ResourceID}
}
