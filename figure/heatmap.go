package figure

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"

	"github.com/nvr-ai/go-explain/images"
)

// DefaultColorMap returns the sequential map used for activation maps.
func DefaultColorMap() palette.ColorMap {
	return moreland.Kindlmann()
}

// Heatmap colours a single channel h x w map.
//
// Values are min-max scaled to [0, 1] before lookup. A constant map renders
// in the lowest colour.
//
// Arguments:
//   - data: h*w values, row-major.
//   - h: Height.
//   - w: Width.
//   - cmap: The colour map. Nil uses DefaultColorMap.
//
// Returns:
//   - *image.RGBA: The coloured image.
//   - error: An error if data has the wrong length.
func Heatmap(data []float32, h, w int, cmap palette.ColorMap) (*image.RGBA, error) {
	if len(data) != h*w {
		return nil, errors.Errorf("heatmap has %d values, want %dx%d", len(data), h, w)
	}
	if cmap == nil {
		cmap = DefaultColorMap()
	}
	cmap.SetMin(0)
	cmap.SetMax(1)

	norm := images.MinMax(data)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := images.Clamp(float64(norm[y*w+x]), 0, 1)
			c, err := cmap.At(v)
			if err != nil {
				return nil, errors.Wrapf(err, "colour value %g", v)
			}
			dst.Set(x, y, color.RGBAModel.Convert(c))
		}
	}
	return dst, nil
}
