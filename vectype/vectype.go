// Package vectype describes how a vector's logical float32 values are encoded
// to the bytes stored in a segment, and the similarity function used to
// compare them.
//
// Every segment fixes one Kind and one Similarity for its lifetime; all
// vectors stored in a segment share the same dimension and encoding
// (spec invariant: "within a segment all vectors have identical dimension
// and encoding").
package vectype

import (
	"encoding/binary"
	"math"
)

// Kind selects the byte encoding used for a dense vector.
type Kind int

const (
	// DenseF32 stores each component as a little-endian float32; its
	// Alignment() is 4.
	DenseF32 Kind = iota
	// DenseF32Unaligned is bit-identical to DenseF32; its Alignment() is 1.
	// Record padding in a DataStore comes from the alignment passed to it,
	// not from the Kind.
	DenseF32Unaligned
)

// Type fully describes a segment's vector encoding.
type Type struct {
	Kind      Kind
	Dimension int
}

// Alignment returns the natural alignment, in bytes, of the encoded vector's
// element type. Both dense kinds use 4-byte float32 elements.
func (t Type) Alignment() int {
	switch t.Kind {
	case DenseF32, DenseF32Unaligned:
		return 4
	default:
		return 1
	}
}

// EncodedLen returns the number of bytes a vector of this type occupies once
// encoded.
func (t Type) EncodedLen() int {
	return t.Dimension * 4
}

// Encode converts a logical float32 vector to its on-disk byte
// representation. The returned slice has length EncodedLen().
func (t Type) Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode converts an encoded byte slice back to a logical float32 vector.
func (t Type) Decode(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Similarity is the closed set of similarity functions a config may select.
// Monomorphizing on this closed set (rather than dispatching per call) keeps
// the HNSW and brute-force inner loops tight.
type Similarity int

const (
	SimilarityCosine Similarity = iota
	SimilarityDot
)

// Func returns the pure similarity function for this choice. Higher is
// always "more similar"; NaN is never produced for finite inputs.
func (s Similarity) Func() func(a, b []byte) float32 {
	switch s {
	case SimilarityDot:
		return DotBytes
	default:
		return CosineBytes
	}
}

// DotBytes computes the dot product of two encoded float32 vectors.
func DotBytes(a, b []byte) float32 {
	n := len(a) / 4
	var sum float64
	for i := 0; i < n; i++ {
		av := math.Float32frombits(binary.LittleEndian.Uint32(a[i*4:]))
		bv := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		sum += float64(av) * float64(bv)
	}
	return float32(sum)
}

// CosineBytes computes cosine similarity of two encoded float32 vectors.
func CosineBytes(a, b []byte) float32 {
	n := len(a) / 4
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		av := float64(math.Float32frombits(binary.LittleEndian.Uint32(a[i*4:])))
		bv := float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Normalize returns an L2-normalized copy of v. A zero vector normalizes to
// itself.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
