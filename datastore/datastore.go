// Package datastore implements the fixed-layout, mmap-backed record file
// that backs a segment's paragraph storage (spec §4.1 "DataStore").
//
// A DataStore holds one record per paragraph: an external key, an opaque
// metadata blob, a label set, and 1..N dense vectors. Paragraph address and
// vector address are distinct, monotonically-assigned 32-bit index spaces
// (spec §3): paragraph address is the record's position in the file's
// pointer table, while vector address is derived by a single linear scan at
// Create/Open/Merge time over the (paragraph, vector-within-paragraph) pairs
// in file order. This keeps the on-disk format to the single nodes.kv file
// spec §6.1 names, at the cost of rebuilding a small in-memory lookup table
// whenever a store is (re)opened — a deliberate simplification documented in
// DESIGN.md, since the retrieved reference source did not include the v2
// multi-vector on-disk format in enough detail to translate literally.
package datastore

import (
	"fmt"

	"github.com/shardstore/shardcore/vectype"
)

// DataStore is a read side (mmap) over a nodes.kv file, plus the derived
// vector address table.
type DataStore struct {
	vt    vectype.Type
	s     *store
	owner []uint32 // vector address -> owning paragraph address
	local []int    // vector address -> index within that paragraph's Vectors
	// paraVectorStart[p] is the first vector address owned by paragraph p.
	paraVectorStart []uint32
}

// Create writes a fresh nodes.kv containing paragraphs in the given order
// (their order becomes their paragraph address) and returns an open
// DataStore over it.
func Create(path string, paragraphs []Paragraph, vt vectype.Type, alignment int) (*DataStore, error) {
	records := make([][]byte, len(paragraphs))
	for i, p := range paragraphs {
		records[i] = encodeParagraph(p, vt)
	}
	if _, err := createStore(path, records, alignment); err != nil {
		return nil, err
	}
	return Open(path, vt)
}

// Open mmaps an existing nodes.kv file and rebuilds its vector address table.
func Open(path string, vt vectype.Type) (*DataStore, error) {
	s, err := openStore(path)
	if err != nil {
		return nil, err
	}
	ds := &DataStore{vt: vt, s: s}
	if err := ds.buildVectorIndex(); err != nil {
		s.close()
		return nil, err
	}
	return ds, nil
}

func (d *DataStore) buildVectorIndex() error {
	d.paraVectorStart = make([]uint32, d.s.count)
	for p := 0; p < d.s.count; p++ {
		view, _, err := readExact(d.s.recordBytes(p), d.vt)
		if err != nil {
			return fmt.Errorf("datastore: build vector index: paragraph %d: %w", p, err)
		}
		d.paraVectorStart[p] = uint32(len(d.owner))
		for i := 0; i < view.numVectors; i++ {
			d.owner = append(d.owner, uint32(p))
			d.local = append(d.local, i)
		}
	}
	return nil
}

// Close unmaps the underlying file.
func (d *DataStore) Close() error { return d.s.close() }

// StoredParagraphCount returns the number of paragraph records.
func (d *DataStore) StoredParagraphCount() int { return d.s.count }

// StoredVectorCount returns the total number of vectors across all
// paragraphs.
func (d *DataStore) StoredVectorCount() int { return len(d.owner) }

// SizeBytes reports the mapped file's size, for SpaceUsage accounting
// (spec §4.5, supplemented feature).
func (d *DataStore) SizeBytes() int64 { return d.s.sizeBytes() }

// WillNeed advises the kernel to prefetch a paragraph's backing pages ahead
// of a traversal that is about to touch it (spec §4.1).
func (d *DataStore) WillNeed(paragraphAddr int) error {
	if paragraphAddr < 0 || paragraphAddr >= d.s.count {
		return fmt.Errorf("datastore: paragraph address %d out of range", paragraphAddr)
	}
	return willNeed(d.s.recordBytes(paragraphAddr))
}

// GetParagraph decodes the paragraph at the given address.
func (d *DataStore) GetParagraph(addr int) (Paragraph, error) {
	if addr < 0 || addr >= d.s.count {
		return Paragraph{}, fmt.Errorf("datastore: paragraph address %d out of range", addr)
	}
	view, _, err := readExact(d.s.recordBytes(addr), d.vt)
	if err != nil {
		return Paragraph{}, err
	}
	return view.toParagraph(d.vt), nil
}

// ParagraphOf returns the paragraph address that owns a vector address.
func (d *DataStore) ParagraphOf(vectorAddr int) (int, error) {
	if vectorAddr < 0 || vectorAddr >= len(d.owner) {
		return 0, fmt.Errorf("datastore: vector address %d out of range", vectorAddr)
	}
	return int(d.owner[vectorAddr]), nil
}

// VectorRange returns the [start, end) vector address range owned by a
// paragraph, used by brute-force search to enumerate a paragraph's vectors.
func (d *DataStore) VectorRange(paragraphAddr int) (start, end int, err error) {
	if paragraphAddr < 0 || paragraphAddr >= d.s.count {
		return 0, 0, fmt.Errorf("datastore: paragraph address %d out of range", paragraphAddr)
	}
	start = int(d.paraVectorStart[paragraphAddr])
	if paragraphAddr == d.s.count-1 {
		end = len(d.owner)
	} else {
		end = int(d.paraVectorStart[paragraphAddr+1])
	}
	return start, end, nil
}

// GetVector decodes the vector at the given vector address.
func (d *DataStore) GetVector(vectorAddr int) ([]float32, error) {
	bytes, err := d.GetVectorBytes(vectorAddr)
	if err != nil {
		return nil, err
	}
	return d.vt.Decode(bytes), nil
}

// GetVectorBytes returns the raw encoded bytes of the vector at the given
// address, avoiding a decode allocation when only a byte-level similarity
// function (vectype.CosineBytes/DotBytes) is needed.
func (d *DataStore) GetVectorBytes(vectorAddr int) ([]byte, error) {
	if vectorAddr < 0 || vectorAddr >= len(d.owner) {
		return nil, fmt.Errorf("datastore: vector address %d out of range", vectorAddr)
	}
	paragraphAddr := int(d.owner[vectorAddr])
	view, _, err := readExact(d.s.recordBytes(paragraphAddr), d.vt)
	if err != nil {
		return nil, err
	}
	return view.vectorBytes(d.local[vectorAddr], d.vt), nil
}

// MergeOperant is one input segment's DataStore plus the liveness predicate
// (over paragraph address) that decides which of its records survive the
// merge (spec §4.3 "Merge").
type MergeOperant struct {
	Store *DataStore
	Alive func(paragraphAddr int) bool
}

// MergeResult reports what happened during a merge: how many paragraphs each
// operant contributed, and the remap from an operant's old paragraph address
// to its new one in the merged store (addresses of dropped paragraphs are
// absent from the map).
type MergeResult struct {
	KeptPerOperant []int
	Remap          []map[int]int // Remap[operantIdx][oldParagraphAddr] = newParagraphAddr
	HasDeletions   bool
}

// Merge concatenates operants in order (producer order, then within-producer
// order preserved — spec §4.1's ordering guarantee), dropping paragraphs the
// corresponding Alive predicate rejects, and returns an open DataStore over
// the merged file.
//
// When operants[0].Alive accepts every one of its paragraphs, the merged
// store's first N records are byte-identical in relative order to
// operants[0]'s, which is what lets segment.Merge reuse operant[0]'s HNSW
// graph wholesale (spec §4.3).
func Merge(path string, operants []MergeOperant, vt vectype.Type, alignment int) (*DataStore, MergeResult, error) {
	producers := make([]mergeProducer, len(operants))
	result := MergeResult{
		KeptPerOperant: make([]int, len(operants)),
		Remap:          make([]map[int]int, len(operants)),
	}
	for i, op := range operants {
		i, op := i, op
		result.Remap[i] = make(map[int]int)
		producers[i] = mergeProducer{
			s: op.Store.s,
			keep: func(localIdx int, record []byte) bool {
				return op.Alive(localIdx)
			},
		}
		if op.Store.s.count != countAlive(op.Alive, op.Store.s.count) {
			result.HasDeletions = true
		}
	}

	recordLen := func(buf []byte) (int, error) {
		view, _, err := readExact(buf, vt)
		if err != nil {
			return 0, err
		}
		return len(view.buf), nil
	}
	onKeep := func(producerIdx, localIdx, newAddr int) {
		result.Remap[producerIdx][localIdx] = newAddr
		result.KeptPerOperant[producerIdx]++
	}

	if err := mergeStores(path, producers, alignment, recordLen, onKeep); err != nil {
		return nil, result, err
	}
	ds, err := Open(path, vt)
	return ds, result, err
}

func countAlive(alive func(int) bool, n int) int {
	c := 0
	for i := 0; i < n; i++ {
		if alive(i) {
			c++
		}
	}
	return c
}
