package facematch

import (
	"fmt"
	"math"
)

// ScorePrecision is the number of decimal places used for stored centroids
// and for scores handed to callers.
const ScorePrecision = 6

// CosineSimilarity computes dot(a, b) / (|a| * |b|).
// Returns 0 when either vector is empty, has zero norm, or the dimensions
// differ, so a malformed vector can never win a match.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dotProduct += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ValidateEmbedding checks that v is non-empty and contains only finite numbers.
func ValidateEmbedding(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// roundedEqual reports whether a and b are identical after rounding every
// component to ScorePrecision places.
func roundedEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if RoundTo(float64(a[i]), ScorePrecision) != RoundTo(float64(b[i]), ScorePrecision) {
			return false
		}
	}
	return true
}
