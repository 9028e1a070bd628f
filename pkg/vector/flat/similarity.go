package flat

import (
	"math"

	"github.com/hupe1980/vecgo/distance"
)

// normalize returns a unit-L2 copy of v. A zero-norm vector normalizes to
// the zero vector.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	inv := inverseNorm(v)
	if inv == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// inverseNorm returns 1/||v||, or 0 for a zero-norm vector.
func inverseNorm(v []float32) float32 {
	n2 := distance.Dot(v, v)
	if n2 == 0 {
		return 0
	}
	return float32(1 / math.Sqrt(float64(n2)))
}

// Cosine returns the cosine similarity of a and b, treating zero-norm
// vectors as the zero vector (similarity 0). a and b must have equal length.
func Cosine(a, b []float32) float32 {
	return distance.Dot(normalize(a), normalize(b))
}
