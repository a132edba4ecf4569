package images

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// RGBToLabHWC converts a pixel-major sRGB float image in [0, 1] to CIE L*a*b*.
//
// L* is in [0, 100]; a* and b* are the unscaled opponent axes.
//
// Arguments:
//   - data: h*w*3 values in HWC order.
//   - h: Height.
//   - w: Width.
//
// Returns:
//   - []float64: h*w*3 Lab values in HWC order.
//   - error: An error if the image cannot be converted.
func RGBToLabHWC(data []float64, h, w int) ([]float64, error) {
	src, err := MatFromHWC(data, h, w, 3)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.CvtColor(src, &dst, gocv.ColorRGBToLab)

	out, err := HWCFromMat(dst)
	if err != nil {
		return nil, errors.Wrap(err, "rgb to lab")
	}
	return out, nil
}
