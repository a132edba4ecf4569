package segmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadrants builds an image with four flat coloured quadrants.
func quadrants(h, w int) []float64 {
	colors := [4][3]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 0},
	}
	img := make([]float64, h*w*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if y >= h/2 {
				q += 2
			}
			if x >= w/2 {
				q++
			}
			copy(img[(y*w+x)*3:], colors[q][:])
		}
	}
	return img
}

func assertContiguous(t *testing.T, labels []int, n int) {
	t.Helper()

	seen := make([]bool, n)
	for _, l := range labels {
		require.GreaterOrEqual(t, l, 0)
		require.Less(t, l, n)
		seen[l] = true
	}
	for l, ok := range seen {
		assert.True(t, ok, "label %d unused", l)
	}
}

func TestSLICCoversImage(t *testing.T) {
	h, w := 64, 64
	labels, n, err := SLIC(quadrants(h, w), h, w, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, labels, h*w)
	assertContiguous(t, labels, n)

	// Connectivity enforcement only merges, so the count stays near the request.
	assert.Greater(t, n, 25)
	assert.LessOrEqual(t, n, 150)
}

func TestSLICRespectsColourEdges(t *testing.T) {
	h, w := 32, 32
	opts := DefaultOptions()
	opts.Segments = 4
	opts.Sigma = 0
	opts.Compactness = 0.1

	labels, n, err := SLIC(quadrants(h, w), h, w, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// No superpixel crosses a quadrant border.
	quadrantOf := map[int]int{}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if y >= h/2 {
				q += 2
			}
			if x >= w/2 {
				q++
			}
			l := labels[y*w+x]
			if prev, ok := quadrantOf[l]; ok {
				require.Equal(t, prev, q, "label %d spans quadrants", l)
			}
			quadrantOf[l] = q
		}
	}
}

func TestSLICWithoutConnectivity(t *testing.T) {
	h, w := 16, 24
	opts := DefaultOptions()
	opts.Segments = 6
	opts.EnforceConnectivity = false

	labels, n, err := SLIC(quadrants(h, w), h, w, opts)
	require.NoError(t, err)
	assertContiguous(t, labels, n)
	assert.LessOrEqual(t, n, 6)
}

func TestSLICValidatesInput(t *testing.T) {
	tests := []struct {
		name string
		img  []float64
		opts Options
	}{
		{name: "short image", img: make([]float64, 10), opts: DefaultOptions()},
		{name: "no segments", img: make([]float64, 4*4*3), opts: Options{Compactness: 1}},
		{name: "no compactness", img: make([]float64, 4*4*3), opts: Options{Segments: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SLIC(tt.img, 4, 4, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestRegularGrid(t *testing.T) {
	stepY, stepX, startY, startX := regularGrid(128, 128, 100)
	assert.Equal(t, 13, stepY)
	assert.Equal(t, 13, stepX)
	assert.Equal(t, 6, startY)
	assert.Equal(t, 6, startX)

	// Fewer pixels than seeds puts a seed on every pixel.
	stepY, stepX, _, _ = regularGrid(2, 2, 10)
	assert.Equal(t, 1, stepY)
	assert.Equal(t, 1, stepX)
}

func TestEnforceConnectivity(t *testing.T) {
	// Label 1 is split into two islands; the single pixel island is merged.
	labels := []int{
		0, 0, 1, 1,
		0, 0, 1, 1,
		1, 0, 0, 0,
		0, 0, 0, 0,
	}
	out, n := enforceConnectivity(labels, 4, 4, 2, 100)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{
		0, 0, 1, 1,
		0, 0, 1, 1,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}, out)
}

func TestSegmentMethod(t *testing.T) {
	labels, err := DefaultOptions().Segment(quadrants(16, 16), 16, 16)
	require.NoError(t, err)
	assert.Len(t, labels, 256)
}
