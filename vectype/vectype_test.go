package vectype

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	typ := Type{Kind: DenseF32, Dimension: 3}
	v := []float32{1.5, -2.25, 3.0}

	encoded := typ.Encode(v)
	require.Len(t, encoded, typ.EncodedLen())

	decoded := typ.Decode(encoded)
	assert.Equal(t, v, decoded)
}

func TestAlignment(t *testing.T) {
	assert.Equal(t, 4, Type{Kind: DenseF32}.Alignment())
	assert.Equal(t, 4, Type{Kind: DenseF32Unaligned}.Alignment())
}

func TestDotAndCosine(t *testing.T) {
	typ := Type{Kind: DenseF32, Dimension: 3}
	a := typ.Encode([]float32{1, 2, 3})
	b := typ.Encode([]float32{4, 5, 6})

	assert.InDelta(t, 32.0, DotBytes(a, b), 1e-6)
	assert.InDelta(t, 0.9746318, CosineBytes(a, b), 1e-6)
}

func TestCosineZeroVector(t *testing.T) {
	typ := Type{Kind: DenseF32, Dimension: 2}
	zero := typ.Encode([]float32{0, 0})
	other := typ.Encode([]float32{1, 1})
	assert.Equal(t, float32(0), CosineBytes(zero, other))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestTotalCmpNaNIsWorst(t *testing.T) {
	nan := float32(math.NaN())
	assert.Equal(t, -1, TotalCmp(nan, 1.0))
	assert.Equal(t, 1, TotalCmp(1.0, nan))
	assert.Equal(t, 0, TotalCmp(nan, nan))
	assert.Equal(t, -1, TotalCmp(0.1, 0.2))
}

func TestSimilarityFunc(t *testing.T) {
	typ := Type{Kind: DenseF32, Dimension: 2}
	a := typ.Encode([]float32{1, 0})
	b := typ.Encode([]float32{1, 0})

	cosine := SimilarityCosine.Func()
	assert.InDelta(t, 1.0, cosine(a, b), 1e-6)

	dot := SimilarityDot.Func()
	assert.InDelta(t, 1.0, dot(a, b), 1e-6)
}
