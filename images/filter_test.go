package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianKernelSize(t *testing.T) {
	assert.Equal(t, 9, GaussianKernelSize(1.0))
	assert.Equal(t, 5, GaussianKernelSize(0.5))
	assert.Equal(t, 17, GaussianKernelSize(2.0))
}

func TestGaussianFilterHWCKeepsConstantImage(t *testing.T) {
	h, w, c := 7, 9, 3
	data := make([]float64, h*w*c)
	for i := range data {
		data[i] = float64(i%c) * 0.25
	}

	out, err := GaussianFilterHWC(data, h, w, c, 1.0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, data, out, 1e-5)
}

func TestGaussianFilterHWCSpreadsImpulse(t *testing.T) {
	h, w := 9, 9
	data := make([]float64, h*w)
	data[4*w+4] = 1

	out, err := GaussianFilterHWC(data, h, w, 1, 1.0)
	require.NoError(t, err)

	total := 0.0
	for _, v := range out {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-4)
	assert.Less(t, out[4*w+4], 1.0)
	assert.Greater(t, out[4*w+4], out[4*w+3])
	assert.InDelta(t, out[4*w+3], out[3*w+4], 1e-6)
}

func TestGaussianFilterHWCZeroSigmaCopies(t *testing.T) {
	data := []float64{0.1, 0.2, 0.3, 0.4}

	out, err := GaussianFilterHWC(data, 2, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	out[0] = 9
	assert.Equal(t, 0.1, data[0])
}

func TestGaussianFilterHWCRejectsBadInput(t *testing.T) {
	_, err := GaussianFilterHWC(make([]float64, 8), 2, 2, 2, 1.0)
	assert.Error(t, err)

	_, err = GaussianFilterHWC(make([]float64, 5), 2, 2, 1, 1.0)
	assert.Error(t, err)
}

func TestMatRoundTrip(t *testing.T) {
	data := []float64{0, 0.25, 0.5, 0.75, 1, 0.125}

	m, err := MatFromHWC(data, 1, 2, 3)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 1, m.Rows())
	assert.Equal(t, 2, m.Cols())
	assert.Equal(t, 3, m.Channels())

	out, err := HWCFromMat(m)
	require.NoError(t, err)
	assert.InDeltaSlice(t, data, out, 1e-7)
}
