package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// GaussianTruncate is the kernel radius in standard deviations.
const GaussianTruncate = 4.0

// GaussianKernelSize returns the odd kernel size used for sigma.
func GaussianKernelSize(sigma float64) int {
	return 2*int(GaussianTruncate*sigma+0.5) + 1
}

// GaussianFilterHWC smooths every channel of a pixel-major float image.
//
// Borders are reflected (d c b a | a b c d), so a constant image is left
// unchanged. Channels are never mixed.
//
// Arguments:
//   - data: h*w*c values in HWC order.
//   - h: Height.
//   - w: Width.
//   - c: Channels (1, 3 or 4).
//   - sigma: Standard deviation in pixels; values <= 0 return a copy.
//
// Returns:
//   - []float64: The smoothed image.
//   - error: An error if the image cannot be converted to a Mat.
//
// @example
// smoothed, err := images.GaussianFilterHWC(img, 128, 128, 3, 1.0)
func GaussianFilterHWC(data []float64, h, w, c int, sigma float64) ([]float64, error) {
	if sigma <= 0 {
		return append([]float64(nil), data...), nil
	}

	src, err := MatFromHWC(data, h, w, c)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	size := GaussianKernelSize(sigma)
	gocv.GaussianBlur(src, &dst, image.Pt(size, size), sigma, sigma, gocv.BorderReflect)

	out, err := HWCFromMat(dst)
	if err != nil {
		return nil, errors.Wrap(err, "gaussian blur")
	}
	return out, nil
}
