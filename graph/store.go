package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes, one byte each, matching the straightforward byte-prefix +
// 0x00-separator scheme used throughout the teacher's own badger-backed
// storage engine. Every triple is written under three orientation prefixes
// so that a query anchored on any one of source, relation, or destination
// can scan a tight key range instead of a full-store walk, plus one reverse
// facet-index entry per facet the triple carries.
const (
	prefixBySource   = byte(0x01) // source \x00 relation \x00 dest \x00 resourceID \x00 -> json(Triple)
	prefixByRelation = byte(0x02) // relation \x00 source \x00 dest \x00 resourceID \x00 -> json(Triple)
	prefixByDest     = byte(0x03) // dest \x00 relation \x00 source \x00 resourceID \x00 -> json(Triple)
	prefixFacetRev   = byte(0x05) // facet \x00 source \x00 relation \x00 dest \x00 resourceID \x00 -> json(Triple)
)

const sep = byte(0x00)

// joinKey builds a key out of a one-byte prefix and a sequence of
// `\x00`-terminated fields. Passing a strict subset of a full key's fields
// yields a valid scan prefix for every key sharing those leading fields.
func joinKey(prefix byte, parts ...string) []byte {
	size := 1
	for _, p := range parts {
		size += len(p) + 1
	}
	key := make([]byte, 0, size)
	key = append(key, prefix)
	for _, p := range parts {
		key = append(key, []byte(p)...)
		key = append(key, sep)
	}
	return key
}

func bySourceKey(t Triple) []byte {
	return joinKey(prefixBySource, t.Source, t.Relation, t.Dest, t.ResourceID)
}

func byRelationKey(t Triple) []byte {
	return joinKey(prefixByRelation, t.Relation, t.Source, t.Dest, t.ResourceID)
}

func byDestKey(t Triple) []byte {
	return joinKey(prefixByDest, t.Dest, t.Relation, t.Source, t.ResourceID)
}

func facetRevKey(facet string, t Triple) []byte {
	return joinKey(prefixFacetRev, facet, t.Source, t.Relation, t.Dest, t.ResourceID)
}

// Store is a small badger-backed triple store: relation edges between named
// nodes, each carrying an optional facet set (hierarchical tags) used by
// Facet queries. Grounded on the teacher's BadgerEngine (byte-prefixed keys,
// prefix-scanned secondary indexes, db.Update/db.View transaction style).
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger-backed triple store rooted at
// dir. Pass "" for an in-memory store, matching the teacher's
// NewBadgerEngineInMemory convenience path for tests.
func Open(dir string) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("graph: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddTriple records a relation edge, writing all three orientation indexes
// plus one reverse facet-index entry per facet t carries, all in a single
// transaction. Every index entry stores the full triple (spec §3's stored
// record shape) so a scan never needs a secondary lookup to recover facets,
// types, or the field/resource identifiers.
func (s *Store) AddTriple(t Triple) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("graph: encode triple: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(bySourceKey(t), value); err != nil {
			return err
		}
		if err := txn.Set(byRelationKey(t), value); err != nil {
			return err
		}
		if err := txn.Set(byDestKey(t), value); err != nil {
			return err
		}
		for _, facet := range t.Facets {
			if err := txn.Set(facetRevKey(facet, t), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeTripleValue(item *badger.Item) (Triple, error) {
	var t Triple
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	})
	return t, err
}

// triplesWithFacetUnder returns every distinct triple carrying a facet equal
// to, or hierarchically nested under (`/`-separated), the given prefix.
func (s *Store) triplesWithFacetUnder(prefix string) ([]Triple, error) {
	// A byte-prefix scan on the bare prefix (no trailing separator) over-
	// matches a sibling facet like "org-eng"; hasFacetUnder below discards
	// those false positives once each candidate's exact facet is decoded.
	scanPrefix := append([]byte{prefixFacetRev}, []byte(prefix)...)

	seen := make(map[tripleKey]bool)
	var out []Triple
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			rest := key[1:]
			i := bytes.IndexByte(rest, sep)
			if i < 0 {
				continue
			}
			facet := string(rest[:i])
			if !hasFacetUnder([]string{facet}, prefix) {
				continue
			}
			t, err := decodeTripleValue(item)
			if err != nil {
				return err
			}
			k := keyOf(t)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

// scanSourcePrefix returns every triple whose source is exactly the given
// value.
func (s *Store) scanSourcePrefix(source string) ([]Triple, error) {
	prefix := joinKey(prefixBySource, source)
	return s.scanTriples(prefix)
}

// scanRelationPrefix returns every triple whose relation is exactly the
// given value.
func (s *Store) scanRelationPrefix(relation string) ([]Triple, error) {
	prefix := joinKey(prefixByRelation, relation)
	return s.scanTriples(prefix)
}

// scanDestPrefix returns every triple whose destination is exactly the
// given value.
func (s *Store) scanDestPrefix(dest string) ([]Triple, error) {
	prefix := joinKey(prefixByDest, dest)
	return s.scanTriples(prefix)
}

// allTriples walks the full bySource index once. Used for the full-scan
// fallback (no filter value pins a prefix) and for BoolNot's complement.
func (s *Store) allTriples() ([]Triple, error) {
	return s.scanTriples([]byte{prefixBySource})
}

func (s *Store) scanTriples(prefix []byte) ([]Triple, error) {
	var out []Triple
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			t, err := decodeTripleValue(it.Item())
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

// FacetsOf returns the union of facets carried by every triple where node
// appears as either the source or the destination.
func (s *Store) FacetsOf(node string) ([]string, error) {
	fromSource, err := s.scanSourcePrefix(node)
	if err != nil {
		return nil, err
	}
	fromDest, err := s.scanDestPrefix(node)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range append(fromSource, fromDest...) {
		for _, f := range t.Facets {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}
