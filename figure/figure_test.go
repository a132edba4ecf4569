package figure

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSetRejectsOutOfRange(t *testing.T) {
	f := New("grid", 2, 3)
	assert.NoError(t, f.Set(1, 2, solid(color.White), "ok"))
	assert.Error(t, f.Set(2, 0, solid(color.White), "row"))
	assert.Error(t, f.Set(0, 3, solid(color.White), "col"))
	assert.Error(t, f.Set(0, 0, nil, "nil"))
}

func TestRenderSize(t *testing.T) {
	f := New("saliency", 2, 3)
	f.CellSize = 64
	require.NoError(t, f.Set(0, 0, solid(color.RGBA{R: 255, A: 255}), "image 0"))
	require.NoError(t, f.Set(1, 2, solid(color.RGBA{G: 255, A: 255}), ""))

	img, err := f.Image()
	require.NoError(t, err)
	b := img.Bounds()
	assert.InDelta(t, 192, b.Dx(), 1)
	assert.InDelta(t, 128, b.Dy(), 1)
}

func TestRenderEmptyFigure(t *testing.T) {
	_, err := New("empty", 0, 4).Render()
	assert.Error(t, err)
}

func TestSavePNG(t *testing.T) {
	f := New("lime", 1, 2)
	f.CellSize = 32
	require.NoError(t, f.Set(0, 0, solid(color.Black), "a"))
	require.NoError(t, f.Set(0, 1, solid(color.White), "b"))

	path := filepath.Join(t.TempDir(), "nested", "lime.png")
	require.NoError(t, f.SavePNG(path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.InDelta(t, 64, img.Bounds().Dx(), 1)
}

func TestHeatmap(t *testing.T) {
	img, err := Heatmap([]float32{0, 1, 2, 3}, 2, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())

	lo := img.RGBAAt(0, 0)
	hi := img.RGBAAt(1, 1)
	assert.NotEqual(t, lo, hi)
	// The sequential map runs from dark to light.
	assert.Less(t, int(lo.R)+int(lo.G)+int(lo.B), int(hi.R)+int(hi.G)+int(hi.B))

	flat, err := Heatmap([]float32{5, 5, 5, 5}, 2, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, lo, flat.RGBAAt(1, 0))

	_, err = Heatmap([]float32{1, 2, 3}, 2, 2, nil)
	assert.Error(t, err)
}

func TestExporterPaths(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir)
	p := e.Path("saliency")
	assert.Equal(t, dir, filepath.Dir(p))
	assert.Contains(t, filepath.Base(p), "saliency-")
	assert.Equal(t, ".png", filepath.Ext(p))
	assert.Equal(t, p, e.Path("saliency"))
}
