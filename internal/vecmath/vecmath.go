// Package vecmath provides the small vector helpers used by the cost model:
// cosine similarity over externally supplied embeddings and affect vectors.
package vecmath

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths, empty input, zero vectors and NaN components yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clampUnit(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Cosine is CosineSimilarity for float64 vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clampUnit(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Normalize scales v in place to unit length. Zero vectors and vectors
// with a non-finite component are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// rounding can push |cos| slightly past 1; a NaN component yields NaN,
// which reads as no signal
func clampUnit(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(-1, math.Min(1, x))
}
