package core

import "math"

// normTolerance is how far a vector's squared norm may drift from 1 and
// still be treated as normalized. Hand-rounded unit vectors such as
// [0.7, 0.7] (squared norm 0.98) are accepted.
const normTolerance = 2.5e-2

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	// Accumulate in float64; float32 sums lose precision on long vectors
	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	// Can't normalize zero vector
	if magnitude == 0 {
		return result
	}

	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// IsNormalized reports whether v has unit length within tolerance.
func IsNormalized(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Abs(sum-1) <= normTolerance
}

// DotProduct calculates the dot product of two equal-length vectors.
// For normalized vectors this is their cosine similarity.
func DotProduct(a, b []float32) float32 {
	var sum float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
