package datastore

import (
	"encoding/binary"
	"fmt"

	"github.com/shardstore/shardcore/vectype"
)

// Paragraph is one stored element: an external key, an opaque metadata blob,
// a set of labels, and 1..N dense vectors (spec §3 "Vector record (v2
// layout)").
type Paragraph struct {
	Key      string
	Metadata []byte
	Labels   []string
	Vectors  [][]float32
}

// encodeParagraph serializes a paragraph to its self-delimiting record form:
//
//	[keyLen u32][key]
//	[metaLen u32][meta]
//	[numLabels u32] { [labelLen u32][label] }...
//	[numVectors u32] { [encoded vector, fixed EncodedLen bytes] }...
func encodeParagraph(p Paragraph, vt vectype.Type) []byte {
	size := 4 + len(p.Key) + 4 + len(p.Metadata) + 4
	for _, l := range p.Labels {
		size += 4 + len(l)
	}
	size += 4 + len(p.Vectors)*vt.EncodedLen()

	buf := make([]byte, size)
	off := 0
	off = putString(buf, off, p.Key)
	off = putBytes(buf, off, p.Metadata)

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(p.Labels)))
	off += 4
	for _, l := range p.Labels {
		off = putString(buf, off, l)
	}

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(p.Vectors)))
	off += 4
	for _, v := range p.Vectors {
		encoded := vt.Encode(v)
		copy(buf[off:], encoded)
		off += len(encoded)
	}
	return buf
}

func putString(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
	off += 4
	copy(buf[off:], s)
	return off + len(s)
}

func putBytes(buf []byte, off int, b []byte) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(b)))
	off += 4
	copy(buf[off:], b)
	return off + len(b)
}

// recordView is a zero-copy view over one encoded paragraph record, used to
// avoid allocating a full Paragraph when only a field is needed (e.g. the key
// during merge, or one vector's bytes during search).
type recordView struct {
	buf        []byte // exactly the record's bytes, no trailing data
	key        []byte
	metadata   []byte
	labels     [][]byte
	vectorsOff int // offset of the first vector's bytes within buf
	numVectors int
}

// readExact parses a record starting at the head of buf and returns the
// consumed head and the remaining tail, matching the DataStore Interpreter
// contract (spec §4.1): a record is self-delimiting without an external
// length prefix.
func readExact(buf []byte, vt vectype.Type) (view recordView, tail []byte, err error) {
	off := 0
	keyLen, off2, err := getU32(buf, off)
	if err != nil {
		return view, nil, err
	}
	off = off2
	if off+int(keyLen) > len(buf) {
		return view, nil, fmt.Errorf("datastore: truncated key")
	}
	view.key = buf[off : off+int(keyLen)]
	off += int(keyLen)

	metaLen, off2, err := getU32(buf, off)
	if err != nil {
		return view, nil, err
	}
	off = off2
	if off+int(metaLen) > len(buf) {
		return view, nil, fmt.Errorf("datastore: truncated metadata")
	}
	view.metadata = buf[off : off+int(metaLen)]
	off += int(metaLen)

	numLabels, off2, err := getU32(buf, off)
	if err != nil {
		return view, nil, err
	}
	off = off2
	view.labels = make([][]byte, numLabels)
	for i := 0; i < int(numLabels); i++ {
		labelLen, o, err := getU32(buf, off)
		if err != nil {
			return view, nil, err
		}
		off = o
		if off+int(labelLen) > len(buf) {
			return view, nil, fmt.Errorf("datastore: truncated label")
		}
		view.labels[i] = buf[off : off+int(labelLen)]
		off += int(labelLen)
	}

	numVectors, off2, err := getU32(buf, off)
	if err != nil {
		return view, nil, err
	}
	off = off2
	view.numVectors = int(numVectors)
	view.vectorsOff = off
	vecBytes := int(numVectors) * vt.EncodedLen()
	if off+vecBytes > len(buf) {
		return view, nil, fmt.Errorf("datastore: truncated vectors")
	}
	off += vecBytes

	view.buf = buf[:off]
	return view, buf[off:], nil
}

func getU32(buf []byte, off int) (uint32, int, error) {
	if off+4 > len(buf) {
		return 0, 0, fmt.Errorf("datastore: truncated length prefix")
	}
	return binary.LittleEndian.Uint32(buf[off:]), off + 4, nil
}

func (v recordView) vectorBytes(i int, vt vectype.Type) []byte {
	n := vt.EncodedLen()
	start := v.vectorsOff + i*n
	return v.buf[start : start+n]
}

func (v recordView) toParagraph(vt vectype.Type) Paragraph {
	p := Paragraph{
		Key:      string(v.key),
		Metadata: append([]byte(nil), v.metadata...),
		Labels:   make([]string, len(v.labels)),
		Vectors:  make([][]float32, v.numVectors),
	}
	for i, l := range v.labels {
		p.Labels[i] = string(l)
	}
	for i := 0; i < v.numVectors; i++ {
		p.Vectors[i] = vt.Decode(v.vectorBytes(i, vt))
	}
	return p
}
