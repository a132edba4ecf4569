package images

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// floatMatType returns the CV_32F Mat type with c channels.
func floatMatType(c int) (gocv.MatType, error) {
	switch c {
	case 1:
		return gocv.MatTypeCV32FC1, nil
	case 3:
		return gocv.MatTypeCV32FC3, nil
	case 4:
		return gocv.MatTypeCV32FC4, nil
	default:
		return 0, errors.Errorf("unsupported channel count %d", c)
	}
}

// MatFromHWC copies a pixel-major float image into a CV_32F Mat.
//
// Arguments:
//   - data: h*w*c values in HWC order.
//   - h: Height.
//   - w: Width.
//   - c: Channels (1, 3 or 4).
//
// Returns:
//   - gocv.Mat: The Mat, which the caller must Close.
//   - error: An error if the size or channel count is invalid.
func MatFromHWC(data []float64, h, w, c int) (gocv.Mat, error) {
	mt, err := floatMatType(c)
	if err != nil {
		return gocv.Mat{}, err
	}
	if h <= 0 || w <= 0 || len(data) != h*w*c {
		return gocv.Mat{}, errors.Errorf("image has %d values, want %dx%dx%d", len(data), h, w, c)
	}

	m := gocv.NewMatWithSize(h, w, mt)
	buf, err := m.DataPtrFloat32()
	if err != nil {
		m.Close()
		return gocv.Mat{}, errors.Wrap(err, "mat data")
	}
	for i, v := range data {
		buf[i] = float32(v)
	}
	return m, nil
}

// HWCFromMat copies a CV_32F Mat back into a pixel-major float slice.
func HWCFromMat(m gocv.Mat) ([]float64, error) {
	if m.Empty() {
		return nil, errors.New("empty mat")
	}
	buf, err := m.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "mat data")
	}
	out := make([]float64, len(buf))
	for i, v := range buf {
		out[i] = float64(v)
	}
	return out, nil
}
