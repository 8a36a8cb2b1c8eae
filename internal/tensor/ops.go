package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalises src to zero mean and unit variance, then applies the
// affine transform dst[i] = norm[i]*gain[i] + bias[i]. Statistics are
// accumulated in float64. dst and src may alias.
func LayerNorm(dst, src, gain, bias []float32, eps float32) {
	n := len(src)
	if n == 0 {
		return
	}
	var mean float64
	for _, v := range src {
		mean += float64(v)
	}
	mean /= float64(n)
	var variance float64
	for _, v := range src {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(n)
	inv := 1.0 / math.Sqrt(variance+float64(eps))
	for i, v := range src {
		norm := float32((float64(v) - mean) * inv)
		dst[i] = norm*gain[i] + bias[i]
	}
}

// Softmax applies the softmax function to x.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

var geluCoef = math.Sqrt(2 / math.Pi)

// GELU computes the tanh approximation of the Gaussian Error Linear Unit.
func GELU(x float32) float32 {
	v := float64(x)
	return float32(0.5 * v * (1 + math.Tanh(geluCoef*(v+0.044715*v*v*v))))
}

// GELUInPlace applies GELU to every element of x.
func GELUInPlace(x []float32) {
	for i, v := range x {
		x[i] = GELU(v)
	}
}

// Argmax returns the index of the maximum value in the slice. Earlier indices
// win ties. It panics on an empty slice.
func Argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
