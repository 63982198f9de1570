package vectype

import "math"

// TotalCmp orders two scores the way IEEE 754 totalOrder does, treating NaN
// as the worst possible score regardless of sign. Used everywhere scores are
// sorted so that a NaN produced by a pathological input never wins a
// comparison (spec §4.3: "Distances are compared as f32::total_cmp; NaN is
// treated as the worst score").
func TotalCmp(a, b float32) int {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
