// Package segmentation - Superpixel segmentation of float images.
//
// Images are pixel-major (HWC) float64 slices with three RGB channels in
// [0, 1]. Label maps are row-major []int with contiguous labels from 0.
package segmentation

import (
	"math"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-explain/images"
)

// Options configures SLIC.
type Options struct {
	// Segments is the approximate number of superpixels.
	Segments int `yaml:"segments"`
	// Compactness trades colour proximity against space proximity. Higher
	// values give squarer superpixels.
	Compactness float64 `yaml:"compactness"`
	// Sigma is the width of the gaussian smoothing applied before clustering.
	Sigma float64 `yaml:"sigma"`
	// MaxIter bounds the k-means iterations.
	MaxIter int `yaml:"max_iter"`
	// EnforceConnectivity merges disconnected fragments into a neighbour.
	EnforceConnectivity bool `yaml:"enforce_connectivity"`
	// MinSizeFactor is the smallest segment kept, relative to the mean size.
	MinSizeFactor float64 `yaml:"min_size_factor"`
	// MaxSizeFactor is the largest connected component, relative to the mean size.
	MaxSizeFactor float64 `yaml:"max_size_factor"`
}

// DefaultOptions returns the settings used for local explanations.
func DefaultOptions() Options {
	return Options{
		Segments:            100,
		Compactness:         1,
		Sigma:               1,
		MaxIter:             10,
		EnforceConnectivity: true,
		MinSizeFactor:       0.5,
		MaxSizeFactor:       3,
	}
}

// Segment runs SLIC with these options.
//
// It has the shape of a segmentation function so an Options value can be
// handed to the local explainer directly.
func (o Options) Segment(img []float64, h, w int) ([]int, error) {
	labels, _, err := SLIC(img, h, w, o)
	return labels, err
}

type center struct {
	y, x    float64
	l, a, b float64
}

// SLIC partitions an RGB image into superpixels by k-means clustering in
// the joint (L*a*b*, y, x) space.
//
// Arguments:
//   - img: h*w*3 RGB values in [0, 1].
//   - h: Height.
//   - w: Width.
//   - opts: Clustering parameters.
//
// Returns:
//   - []int: The label of every pixel.
//   - int: The number of labels.
//   - error: An error if the image or options are invalid.
//
// @example
// labels, n, err := segmentation.SLIC(img, 128, 128, segmentation.DefaultOptions())
func SLIC(img []float64, h, w int, opts Options) ([]int, int, error) {
	if h <= 0 || w <= 0 || len(img) != h*w*3 {
		return nil, 0, errors.Errorf("image has %d values, want %dx%dx3", len(img), h, w)
	}
	if opts.Segments <= 0 {
		return nil, 0, errors.Errorf("segments must be positive, got %d", opts.Segments)
	}
	if opts.Compactness <= 0 {
		return nil, 0, errors.Errorf("compactness must be positive, got %g", opts.Compactness)
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 10
	}

	smoothed, err := images.GaussianFilterHWC(img, h, w, 3, opts.Sigma)
	if err != nil {
		return nil, 0, errors.Wrap(err, "smooth image")
	}
	lab, err := images.RGBToLabHWC(smoothed, h, w)
	if err != nil {
		return nil, 0, errors.Wrap(err, "convert to lab")
	}
	ratio := 1 / opts.Compactness
	for i := range lab {
		lab[i] *= ratio
	}

	stepY, stepX, startY, startX := regularGrid(h, w, opts.Segments)
	var centers []center
	for y := startY; y < h; y += stepY {
		for x := startX; x < w; x += stepX {
			// Colours start at zero, so the first assignment is purely spatial.
			centers = append(centers, center{y: float64(y), x: float64(x)})
		}
	}

	step := stepY
	if stepX > step {
		step = stepX
	}
	spatial := 1 / float64(step*step)

	labels := make([]int, h*w)
	for i := range labels {
		labels[i] = -1
	}
	distance := make([]float64, h*w)

	for iter := 0; iter < opts.MaxIter; iter++ {
		for i := range distance {
			distance[i] = math.MaxFloat64
		}
		changed := false

		for k, c := range centers {
			y0, y1 := window(c.y, stepY, h)
			x0, x1 := window(c.x, stepX, w)
			for y := y0; y < y1; y++ {
				dy := c.y - float64(y)
				for x := x0; x < x1; x++ {
					dx := c.x - float64(x)
					i := y*w + x
					p := lab[i*3 : i*3+3]
					d := (dy*dy+dx*dx)*spatial +
						sq(p[0]-c.l) + sq(p[1]-c.a) + sq(p[2]-c.b)
					if d < distance[i] {
						distance[i] = d
						if labels[i] != k {
							labels[i] = k
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			break
		}
		updateCenters(centers, labels, lab, w)
	}

	if !opts.EnforceConnectivity {
		return relabel(labels)
	}

	mean := float64(h*w) / float64(len(centers))
	out, n := enforceConnectivity(labels, h, w,
		int(opts.MinSizeFactor*mean), int(opts.MaxSizeFactor*mean))
	return out, n, nil
}

// regularGrid places about n seeds on an evenly spaced grid.
func regularGrid(h, w, n int) (stepY, stepX, startY, startX int) {
	size := float64(h * w)
	if size <= float64(n) {
		return 1, 1, 0, 0
	}

	fy := math.Sqrt(size / float64(n))
	fx := fy
	// A thin image cannot hold a square grid along its short side.
	if short := float64(min(h, w)); short < fy {
		long := float64(max(h, w)) / float64(n)
		if h < w {
			fy, fx = short, long
		} else {
			fy, fx = long, short
		}
	}

	stepY, stepX = int(math.Round(fy)), int(math.Round(fx))
	return max(stepY, 1), max(stepX, 1), int(fy / 2), int(fx / 2)
}

// window returns the search range of a center along one axis.
func window(c float64, step, limit int) (int, int) {
	lo := int(c) - 2*step
	hi := int(c) + 2*step + 1
	return max(lo, 0), min(hi, limit)
}

func updateCenters(centers []center, labels []int, lab []float64, w int) {
	sums := make([]center, len(centers))
	counts := make([]int, len(centers))
	for i, k := range labels {
		s := &sums[k]
		s.y += float64(i / w)
		s.x += float64(i % w)
		s.l += lab[i*3]
		s.a += lab[i*3+1]
		s.b += lab[i*3+2]
		counts[k]++
	}
	for k, n := range counts {
		if n == 0 {
			continue
		}
		f := float64(n)
		centers[k] = center{
			y: sums[k].y / f,
			x: sums[k].x / f,
			l: sums[k].l / f,
			a: sums[k].a / f,
			b: sums[k].b / f,
		}
	}
}

// relabel maps arbitrary labels to 0..n-1 in order of first appearance.
func relabel(labels []int) ([]int, int, error) {
	ids := map[int]int{}
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		out[i] = id
	}
	return out, len(ids), nil
}

func sq(v float64) float64 { return v * v }
