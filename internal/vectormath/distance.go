// Package vectormath provides the distance and centroid primitives used by
// the clustering engine. All functions operate on float64 vectors and are
// free of side effects.
//
// Use these functions instead of implementing your own to keep distance
// semantics consistent across the engine.
package vectormath

import (
	"fmt"
	"math"
)

// Kind selects the distance function used when comparing vectors.
type Kind string

const (
	// Euclidean is the L2 norm of the difference between two vectors.
	Euclidean Kind = "euclidean"

	// Cosine is 1 - cosine similarity. It is the default for embedding
	// comparisons because embedding magnitude carries no meaning here.
	Cosine Kind = "cosine"
)

// Valid reports whether k names a known distance kind.
func (k Kind) Valid() bool {
	return k == Euclidean || k == Cosine
}

// Distance computes the distance between two vectors of equal length.
// A length mismatch is a programming error and panics; callers own the
// parallel-array invariant.
func Distance(a, b []float64, kind Kind) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vectormath: dimension mismatch %d != %d", len(a), len(b)))
	}

	switch kind {
	case Euclidean:
		return EuclideanDistance(a, b)
	default:
		return CosineDistance(a, b)
	}
}

// EuclideanDistance returns the L2 distance between a and b.
// Panics on length mismatch.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vectormath: dimension mismatch %d != %d", len(a), len(b)))
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cosine similarity of a and b, in [0, 2].
// When either vector has zero magnitude the distance is defined as 1.0
// (maximally dissimilar) rather than dividing by zero.
// Panics on length mismatch.
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vectormath: dimension mismatch %d != %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 1.0
	}

	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// Centroid returns the element-wise mean of the member vectors.
// Returns nil for an empty member set. All members must share the same
// dimensionality; a mismatch panics.
func Centroid(members [][]float64) []float64 {
	if len(members) == 0 {
		return nil
	}

	dim := len(members[0])
	centroid := make([]float64, dim)
	for _, v := range members {
		if len(v) != dim {
			panic(fmt.Sprintf("vectormath: dimension mismatch %d != %d", len(v), dim))
		}
		for i, x := range v {
			centroid[i] += x
		}
	}

	n := float64(len(members))
	for i := range centroid {
		centroid[i] /= n
	}
	return centroid
}

// Normalize returns a unit-length copy of v. The input is not modified.
// A zero vector normalizes to a zero vector of the same length.
func Normalize(v []float64) []float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}

	normalized := make([]float64, len(v))
	if sumSquares == 0 {
		return normalized
	}

	norm := math.Sqrt(sumSquares)
	for i, x := range v {
		normalized[i] = x / norm
	}
	return normalized
}
