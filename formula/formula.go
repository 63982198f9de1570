// Package formula implements the boolean expression model shared by the
// vector and graph searchers (spec §3 "Formula", §4.2).
package formula

// Operator is the boolean connective at a Formula's root.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
)

// AtomKind distinguishes the three atom families spec §3 allows.
type AtomKind int

const (
	// AtomLabel matches a label literal, optionally negated.
	AtomLabel AtomKind = iota
	// AtomKeySet matches membership in an explicit set of external keys
	// (used to implement prefilters and deletions).
	AtomKeySet
	// AtomFacetPrefix matches a `/`-separated facet hierarchy prefix.
	AtomFacetPrefix
)

// Atom is a single clause: a label literal, a key-set membership test, or a
// facet-prefix test. Negated flips the atom's sense when compiled.
type Atom struct {
	Kind     AtomKind
	Label    string   // AtomLabel
	Keys     []string // AtomKeySet
	Facet    string   // AtomFacetPrefix
	Negated  bool
}

// Label builds a positive label atom.
func Label(label string) Atom { return Atom{Kind: AtomLabel, Label: label} }

// NotLabel builds a negated label atom.
func NotLabel(label string) Atom { return Atom{Kind: AtomLabel, Label: label, Negated: true} }

// KeySet builds a key-set membership atom.
func KeySet(keys []string) Atom { return Atom{Kind: AtomKeySet, Keys: keys} }

// FacetPrefix builds a facet-prefix atom.
func FacetPrefix(facet string) Atom { return Atom{Kind: AtomFacetPrefix, Facet: facet} }

// Formula is a boolean expression tree: a flat list of atoms combined with a
// single root operator. Spec §3 describes the root as "operator AND|OR at
// the root" over a set of atoms; nested boolean composition for the vector
// filter is not required (the graph package has its own richer tree for
// PathQuery boolean composition, see graph.Query).
type Formula struct {
	Operator Operator
	Atoms    []Atom
}

// New returns an empty formula (no restriction when compiled by a caller that
// treats an empty formula as "no clauses" — see §4.2: "an empty formula
// yields None (no restriction)").
func New() *Formula {
	return &Formula{Operator: OpAnd}
}

// Empty reports whether the formula carries no atoms.
func (f *Formula) Empty() bool {
	return f == nil || len(f.Atoms) == 0
}

// Add appends an atom to the formula.
func (f *Formula) Add(a Atom) {
	f.Atoms = append(f.Atoms, a)
}

// Extend appends all atoms from other into f, useful for composing a
// prefilter clause with a caller-supplied filter (spec §4.6 step 2).
func (f *Formula) Extend(other *Formula) {
	if other == nil {
		return
	}
	f.Atoms = append(f.Atoms, other.Atoms...)
}

// PrefilterState is the three-valued outcome of a coarse field-level
// restriction (spec §3 "PrefilterResult").
type PrefilterState int

const (
	// PrefilterAll means no restriction: every field qualifies.
	PrefilterAll PrefilterState = iota
	// PrefilterNone means nothing qualifies; callers must short-circuit to
	// empty results without touching any index.
	PrefilterNone
	// PrefilterSome restricts to an explicit set of FieldIDs.
	PrefilterSome
)

// FieldID identifies one field of one resource (spec §3).
type FieldID struct {
	ResourceUUID string
	FieldPath    string
}

// Key returns the external key used by key-set atoms and deletion postings:
// the resource UUID concatenated with the field path, matching
// original_source's `format!("{}{}", resource_id.simple(), field_id)`.
func (f FieldID) Key() string {
	return f.ResourceUUID + f.FieldPath
}

// PrefilterResult is the three-valued prefilter outcome, carrying the
// restricted field set when State == PrefilterSome.
type PrefilterResult struct {
	State  PrefilterState
	Fields []FieldID
}

// All is the sentinel "no restriction" prefilter result.
func All() PrefilterResult { return PrefilterResult{State: PrefilterAll} }

// None is the sentinel "nothing qualifies" prefilter result.
func None() PrefilterResult { return PrefilterResult{State: PrefilterNone} }

// Some restricts the query to the given fields.
func Some(fields []FieldID) PrefilterResult {
	return PrefilterResult{State: PrefilterSome, Fields: fields}
}

// KeySetAtom converts a Some prefilter result into the key-set atom that
// should be appended to a vector-search Formula (spec §4.6 step 2).
func (r PrefilterResult) KeySetAtom() Atom {
	keys := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key()
	}
	return KeySet(keys)
}
