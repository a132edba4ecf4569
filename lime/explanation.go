package lime

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Feature is one superpixel and its surrogate coefficient.
type Feature struct {
	Segment int
	Weight  float64
}

// Explanation holds the surrogate models fitted around one image.
type Explanation struct {
	// Image is the explained h*w*3 image.
	Image  []float64
	Height int
	Width  int
	// Segments is the superpixel of every pixel, in 0..NumSegments-1.
	Segments    []int
	NumSegments int
	// Predictions are the classifier probabilities for Image.
	Predictions []float64
	// TopLabels are the most probable labels, most probable first.
	TopLabels []int
	Intercept map[int]float64
	// LocalExp lists the features of each explained label by decreasing |weight|.
	LocalExp map[int][]Feature
	// Score is the weighted R² of each surrogate on the samples.
	Score map[int]float64
	// LocalPred is each surrogate's prediction for the unperturbed image.
	LocalPred map[int]float64
}

// Labels returns the explained labels in increasing order.
func (e *Explanation) Labels() []int {
	out := make([]int, 0, len(e.LocalExp))
	for l := range e.LocalExp {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// MaskOptions selects the superpixels shown by ImageAndMask.
type MaskOptions struct {
	// PositiveOnly shows only superpixels supporting the label.
	PositiveOnly bool
	// NegativeOnly shows only superpixels against the label.
	NegativeOnly bool
	// HideRest blacks out every superpixel that is not shown.
	HideRest bool
	// NumFeatures is the number of strongest superpixels considered.
	NumFeatures int
	// MinWeight drops superpixels with a smaller absolute weight.
	MinWeight float64
}

// DefaultMaskOptions shows positive and negative evidence over the image.
func DefaultMaskOptions() MaskOptions {
	return MaskOptions{NumFeatures: 11, MinWeight: 0.05}
}

// Mask marks each pixel 1 (supports the label), -1 (against it) or 0.
type Mask []int

// Selected reports which pixels belong to a shown superpixel.
func (m Mask) Selected() []bool {
	out := make([]bool, len(m))
	for i, v := range m {
		out[i] = v != 0
	}
	return out
}

// ImageAndMask renders the explanation of one label.
//
// With PositiveOnly or NegativeOnly the selected superpixels keep their
// pixels and are marked 1. Otherwise supporting superpixels get their green
// channel raised to the image maximum and opposing ones their red channel.
//
// Arguments:
//   - label: An explained label.
//   - opts: Selection options.
//
// Returns:
//   - []float64: The rendered h*w*3 image.
//   - Mask: The per-pixel selection.
//   - error: An error if label was not explained or the options conflict.
//
// @example
// img, mask, err := exp.ImageAndMask(label, lime.DefaultMaskOptions())
func (e *Explanation) ImageAndMask(label int, opts MaskOptions) ([]float64, Mask, error) {
	features, ok := e.LocalExp[label]
	if !ok {
		return nil, nil, errors.Errorf("label %d was not explained", label)
	}
	if opts.PositiveOnly && opts.NegativeOnly {
		return nil, nil, errors.New("positive only and negative only are exclusive")
	}

	mask := make(Mask, len(e.Segments))
	out := make([]float64, len(e.Image))
	if !opts.HideRest {
		copy(out, e.Image)
	}

	show := func(segment, value int) {
		for p, s := range e.Segments {
			if s == segment {
				mask[p] = value
				copy(out[p*3:p*3+3], e.Image[p*3:p*3+3])
			}
		}
	}

	if opts.PositiveOnly || opts.NegativeOnly {
		shown := 0
		for _, f := range features {
			if shown == opts.NumFeatures {
				break
			}
			if opts.PositiveOnly && (f.Weight <= 0 || f.Weight <= opts.MinWeight) {
				continue
			}
			if opts.NegativeOnly && (f.Weight >= 0 || -f.Weight <= opts.MinWeight) {
				continue
			}
			show(f.Segment, 1)
			shown++
		}
		return out, mask, nil
	}

	peak := floats.Max(e.Image)
	for i, f := range features {
		if i == opts.NumFeatures {
			break
		}
		if abs(f.Weight) < opts.MinWeight {
			continue
		}

		value, channel := 1, 1
		if f.Weight < 0 {
			value, channel = -1, 0
		}
		show(f.Segment, value)
		for p, s := range e.Segments {
			if s == f.Segment {
				out[p*3+channel] = peak
			}
		}
	}
	return out, mask, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
