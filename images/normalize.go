package images

import "github.com/chewxy/math32"

// MinMax rescales values so that their minimum maps to 0 and maximum to 1.
//
// The range is not guarded: a constant input divides by zero and yields NaN,
// which renders as black.
//
// Arguments:
//   - data: The values to rescale.
//
// Returns:
//   - []float32: A new slice holding (v - min) / (max - min).
//
// @example
// norm := images.MinMax([]float32{2, 4, 6}) // [0, 0.5, 1]
func MinMax(data []float32) []float32 {
	lo, hi := math32.Inf(1), math32.Inf(-1)
	for _, v := range data {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}

	out := make([]float32, len(data))
	span := hi - lo
	for i, v := range data {
		out[i] = (v - lo) / span
	}
	return out
}

// MinMaxPerSample applies MinMax to every consecutive sample of size stride.
//
// Each sample gets its own range because gradient magnitudes can differ by
// orders of magnitude between images.
//
// Arguments:
//   - data: n*stride values.
//   - stride: Number of values per sample.
//
// Returns:
//   - []float32: The normalized values.
func MinMaxPerSample(data []float32, stride int) []float32 {
	out := make([]float32, 0, len(data))
	for start := 0; start+stride <= len(data); start += stride {
		out = append(out, MinMax(data[start:start+stride])...)
	}
	return out
}

// Clamp restricts a value to the specified range [min, max].
//
// Arguments:
// - value: The value to Clamp.
// - min: Minimum allowed value.
// - max: Maximum allowed value.
//
// Returns:
// - The clamped value within [min, max].
//
// @example
// clamped := Clamp(300.5, 0, 255) // Returns 255
func Clamp(value, min, max float64) float64 {
	// NaN fails both comparisons below.
	if value != value {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
