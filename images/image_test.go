package images

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

func TestToCHWLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	data := ToCHW(img)
	// R plane, G plane, B plane.
	assert.InDeltaSlice(t, []float32{1, 0, 0, 0, 0, 1}, data, 1e-6)
}

func TestFromCHWClampsAndRenders(t *testing.T) {
	data := []float32{2, -1, 0.5, 0.5}
	img := FromCHW(data, 1, 2, 2)

	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(1, 0))
	assert.Equal(t, uint8(128), img.RGBAAt(0, 1).G)
}

func TestCHWHWCTranspose(t *testing.T) {
	// 3 channels, 1x2 pixels.
	chw := []float32{1, 2, 3, 4, 5, 6}
	hwc := CHWToHWC(chw, 3, 1, 2)
	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6}, hwc)
	assert.Equal(t, chw, HWCToCHW(hwc, 3, 1, 2))
}

func TestReadDecodesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "3_1.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 5, 4))))
	require.NoError(t, f.Close())

	meta, img, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, meta.Format)
	assert.Equal(t, 5, meta.Width)
	assert.Equal(t, 4, meta.Height)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, FormatPNG, FormatFromPath(path))
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0_0.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, _, err := Read(path)
	assert.Error(t, err)
}
