package graph

import "fmt"

// Eval compiles and executes a Query against the store, returning every
// matching triple. This is the boolean path-query executor (spec §4.7):
// Path leaves resolve against the triple indexes, boolean nodes combine
// child results as set operations over triples, and Facet leaves resolve
// against the facet indexes.
func Eval(store *Store, q Query) ([]Triple, error) {
	switch v := q.(type) {
	case Path:
		return evalPath(store, v)
	case BoolAnd:
		return evalAnd(store, v)
	case BoolOr:
		return evalOr(store, v)
	case BoolNot:
		return evalNot(store, v)
	case Facet:
		return evalFacet(store, v)
	case nil:
		return nil, fmt.Errorf("%w: nil query", ErrInvalidQuery)
	default:
		return nil, fmt.Errorf("%w: unknown query node %T", ErrInvalidQuery, q)
	}
}

func evalPath(store *Store, p Path) ([]Triple, error) {
	if p.Undirected {
		forward := p
		forward.Undirected = false
		backward := Path{Source: p.Destination, Relation: p.Relation, Destination: p.Source}
		fwd, err := evalPath(store, forward)
		if err != nil {
			return nil, err
		}
		bwd, err := evalPath(store, backward)
		if err != nil {
			return nil, err
		}
		return unionTriples(fwd, bwd), nil
	}

	switch {
	case p.Source != nil && p.Source.Value != "" && isAnchorable(p.Source.Match):
		triples, err := store.scanSourcePrefix(p.Source.Value)
		if err != nil {
			return nil, err
		}
		return filterTriples(triples, p, true, false, false), nil
	case p.Relation != nil && p.Relation.Value != "" && isAnchorable(p.Relation.Match):
		triples, err := store.scanRelationPrefix(p.Relation.Value)
		if err != nil {
			return nil, err
		}
		return filterTriples(triples, p, false, true, false), nil
	case p.Destination != nil && p.Destination.Value != "" && isAnchorable(p.Destination.Match):
		triples, err := store.scanDestPrefix(p.Destination.Value)
		if err != nil {
			return nil, err
		}
		return filterTriples(triples, p, false, false, true), nil
	default:
		triples, err := store.allTriples()
		if err != nil {
			return nil, err
		}
		return filterTriples(triples, p, false, false, false), nil
	}
}

// isAnchorable reports whether a filter's match kind is precise enough (an
// exact, full-value match) to drive a badger key-prefix scan directly,
// rather than requiring a full-store post-filter.
func isAnchorable(m MatchKind) bool {
	return m.kind == kindExact && m.location == LocationFull
}

// filterTriples applies the value, type, and subtype restrictions of p's
// source/relation/destination filters. sourceDone/relationDone/destDone
// mark a dimension whose Value already drove the badger scan that produced
// triples, so its Value check is skipped here (the Value match is implied);
// type/subtype restrictions are never implied by the scan and are always
// checked.
func filterTriples(triples []Triple, p Path, sourceDone, relationDone, destDone bool) []Triple {
	out := triples[:0:0]
	for _, t := range triples {
		if p.Source != nil && !matchNodeFilter(t.Source, t.SourceType, t.SourceSubtype, *p.Source, sourceDone) {
			continue
		}
		if p.Relation != nil && !matchRelationFilter(t.Relation, t.RelationType, *p.Relation, relationDone) {
			continue
		}
		if p.Destination != nil && !matchNodeFilter(t.Dest, t.DestType, t.DestSubtype, *p.Destination, destDone) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchNodeFilter(value string, nodeType NodeType, subtype string, f NodeFilter, valueDone bool) bool {
	if f.NodeType != "" && f.NodeType != nodeType {
		return false
	}
	if f.NodeSubtype != "" && f.NodeSubtype != subtype {
		return false
	}
	if !valueDone && f.Value != "" && !matchString(value, f.Value, f.Match) {
		return false
	}
	return true
}

func matchRelationFilter(value string, relationType RelationType, f RelationFilter, valueDone bool) bool {
	if f.RelationType != "" && f.RelationType != relationType {
		return false
	}
	if !valueDone && f.Value != "" && !matchString(value, f.Value, f.Match) {
		return false
	}
	return true
}

func evalFacet(store *Store, f Facet) ([]Triple, error) {
	return store.triplesWithFacetUnder(f.Facet)
}

func evalAnd(store *Store, b BoolAnd) ([]Triple, error) {
	if len(b.Children) == 0 {
		return nil, nil
	}
	result, err := Eval(store, b.Children[0])
	if err != nil {
		return nil, err
	}
	for _, child := range b.Children[1:] {
		next, err := Eval(store, child)
		if err != nil {
			return nil, err
		}
		result = intersectTriples(result, next)
		if len(result) == 0 {
			return nil, nil
		}
	}
	return result, nil
}

func evalOr(store *Store, b BoolOr) ([]Triple, error) {
	var result []Triple
	for _, child := range b.Children {
		next, err := Eval(store, child)
		if err != nil {
			return nil, err
		}
		result = unionTriples(result, next)
	}
	return result, nil
}

func evalNot(store *Store, b BoolNot) ([]Triple, error) {
	if b.Child == nil {
		return nil, fmt.Errorf("%w: BoolNot has no operand", ErrInvalidQuery)
	}
	all, err := store.allTriples()
	if err != nil {
		return nil, err
	}
	excluded, err := Eval(store, b.Child)
	if err != nil {
		return nil, err
	}
	excludedSet := make(map[tripleKey]bool, len(excluded))
	for _, t := range excluded {
		excludedSet[keyOf(t)] = true
	}
	var out []Triple
	for _, t := range all {
		if !excludedSet[keyOf(t)] {
			out = append(out, t)
		}
	}
	return out, nil
}

func intersectTriples(a, b []Triple) []Triple {
	set := make(map[tripleKey]bool, len(b))
	for _, t := range b {
		set[keyOf(t)] = true
	}
	var out []Triple
	for _, t := range a {
		if set[keyOf(t)] {
			out = append(out, t)
		}
	}
	return out
}

func unionTriples(a, b []Triple) []Triple {
	seen := make(map[tripleKey]bool, len(a)+len(b))
	out := make([]Triple, 0, len(a)+len(b))
	for _, t := range a {
		k := keyOf(t)
		if !seen[k] {
			seen[k] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		k := keyOf(t)
		if !seen[k] {
			seen[k] = true
			out = append(out, t)
		}
	}
	return out
}
