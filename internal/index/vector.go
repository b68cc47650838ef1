package index

import "math"

// Dot returns the dot product of two equal-length vectors. For unit-norm
// vectors this equals their cosine similarity.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// IsNormalized reports whether |v| is within eps of 1.0.
func IsNormalized(v []float32, eps float32) bool {
	n := Norm(v)
	return n > 1-eps && n < 1+eps
}

// Normalize returns a unit-norm copy of v. A zero vector is returned
// unchanged (it cannot be normalized).
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / n
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
