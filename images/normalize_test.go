package images

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMax(t *testing.T) {
	out := MinMax([]float32{2, 4, 6, 3})
	assert.InDeltaSlice(t, []float32{0, 0.5, 1, 0.25}, out, 1e-6)
}

// TestMinMaxPerSample checks that samples with very different scales each
// end up spanning [0, 1].
func TestMinMaxPerSample(t *testing.T) {
	data := []float32{
		100, 550, 1000, // sample 0
		0.0001, 0.0005, 0.001, // sample 1
	}
	out := MinMaxPerSample(data, 3)
	require.Len(t, out, 6)

	for s := 0; s < 2; s++ {
		sample := out[s*3 : s*3+3]
		assert.InDelta(t, 0, sample[0], 1e-5)
		assert.InDelta(t, 1, sample[2], 1e-5)
		for _, v := range sample {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
	assert.InDelta(t, 0.5, out[1], 1e-5)
	assert.InDelta(t, 4.0/9.0, out[4], 1e-3)
}

func TestMinMaxConstantInputIsNaN(t *testing.T) {
	out := MinMax([]float32{3, 3, 3})
	for _, v := range out {
		assert.True(t, math.IsNaN(float64(v)))
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 255.0, Clamp(300.5, 0, 255))
	assert.Equal(t, 0.0, Clamp(-10, 0, 255))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 0, 1))
}
