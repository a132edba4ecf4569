// Package lime - Local interpretable explanations of image classifiers.
//
// An image is split into superpixels, random subsets of superpixels are
// hidden, and a weighted linear model over the on/off pattern is fitted to
// the classifier's response. The coefficients rank how much each superpixel
// supports a label near this image.
package lime

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ClassifierFunc maps a batch of pixel-major images to class probabilities.
type ClassifierFunc func(batch [][]float64) ([][]float64, error)

// SegmentationFunc splits a pixel-major image of size h x w into regions.
type SegmentationFunc func(img []float64, h, w int) ([]int, error)

// Options controls one explanation.
type Options struct {
	// Labels are explained in addition to the top labels.
	Labels []int
	// TopLabels is the number of most probable labels to explain.
	TopLabels int
	// NumSamples is the number of perturbed images.
	NumSamples int
	// BatchSize is the number of images per classifier call.
	BatchSize int
	// NumFeatures caps the superpixels used by each surrogate model.
	// Zero uses all of them.
	NumFeatures int
	// HideColor replaces hidden superpixels. Nil uses each superpixel's mean colour.
	HideColor *float64
	// Seed makes the perturbations reproducible.
	Seed int64
	// Rand, when set, is drawn from instead of a fresh source seeded with
	// Seed, so consecutive explanations continue one stream.
	Rand *rand.Rand
	// Progress shows a progress bar while sampling.
	Progress bool
}

// DefaultOptions returns the sampling settings used for food images.
func DefaultOptions() Options {
	return Options{
		TopLabels:  5,
		NumSamples: 1000,
		BatchSize:  10,
		Seed:       16,
	}
}

// Explainer fits local surrogate models around images.
type Explainer struct {
	// KernelWidth scales the exponential kernel over cosine distances.
	KernelWidth float64
	// Alpha is the ridge regularisation strength.
	Alpha float64
}

// NewExplainer returns an explainer with the given kernel width and unit
// ridge regularisation.
func NewExplainer(kernelWidth float64) *Explainer {
	return &Explainer{KernelWidth: kernelWidth, Alpha: 1}
}

// Kernel turns a distance into a sample weight.
func (e *Explainer) Kernel(d float64) float64 {
	return math.Sqrt(math.Exp(-(d * d) / (e.KernelWidth * e.KernelWidth)))
}

// ExplainInstance explains the classifier's prediction for one image.
//
// Arguments:
//   - img: h*w*3 pixel-major values in [0, 1].
//   - h: Height.
//   - w: Width.
//   - classify: The classifier under explanation.
//   - segment: The superpixel segmentation.
//   - opts: Sampling options.
//
// Returns:
//   - *Explanation: The per-label superpixel weights.
//   - error: An error if segmentation, classification or a fit fails.
//
// @example
// exp, err := lime.NewExplainer(0.25).ExplainInstance(img, 128, 128, clf.Predict, slic.Segment, lime.DefaultOptions())
func (e *Explainer) ExplainInstance(
	img []float64,
	h, w int,
	classify ClassifierFunc,
	segment SegmentationFunc,
	opts Options,
) (*Explanation, error) {
	if len(img) != h*w*3 {
		return nil, errors.Errorf("image has %d values, want %dx%dx3", len(img), h, w)
	}
	if opts.NumSamples < 1 {
		return nil, errors.Errorf("num samples must be positive, got %d", opts.NumSamples)
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}

	raw, err := segment(img, h, w)
	if err != nil {
		return nil, errors.Wrap(err, "segment image")
	}
	if len(raw) != h*w {
		return nil, errors.Errorf("segmentation has %d labels, want %d", len(raw), h*w)
	}
	segments, n := compact(raw)

	fudged := hideImage(img, segments, n, opts.HideColor)
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	data := sampleMasks(rng, opts.NumSamples, n)

	probs, err := e.classifySamples(img, fudged, segments, data, classify, opts)
	if err != nil {
		return nil, err
	}

	distances := cosineDistances(data)
	weights := make([]float64, len(distances))
	for i, d := range distances {
		weights[i] = e.Kernel(d)
	}

	exp := &Explanation{
		Image:       append([]float64(nil), img...),
		Height:      h,
		Width:       w,
		Segments:    segments,
		NumSegments: n,
		Predictions: probs[0],
		TopLabels:   topLabels(probs[0], opts.TopLabels),
		Intercept:   map[int]float64{},
		LocalExp:    map[int][]Feature{},
		Score:       map[int]float64{},
		LocalPred:   map[int]float64{},
	}

	for _, label := range explainedLabels(exp.TopLabels, opts.Labels) {
		if label < 0 || label >= len(probs[0]) {
			return nil, errors.Errorf("label %d out of range [0, %d)", label, len(probs[0]))
		}
		if err := e.explainLabel(exp, data, probs, weights, label, opts.NumFeatures); err != nil {
			return nil, errors.Wrapf(err, "explain label %d", label)
		}
	}
	return exp, nil
}

// explainLabel fits the surrogate for one label and records it on exp.
func (e *Explainer) explainLabel(exp *Explanation, data *mat.Dense, probs [][]float64, weights []float64, label, numFeatures int) error {
	y := make([]float64, len(probs))
	for i, p := range probs {
		y[i] = p[label]
	}

	used, err := e.selectFeatures(data, y, weights, numFeatures)
	if err != nil {
		return err
	}
	x := columns(data, used)

	model, err := fitRidge(x, y, weights, e.Alpha)
	if err != nil {
		return err
	}

	features := make([]Feature, len(used))
	for j, seg := range used {
		features[j] = Feature{Segment: seg, Weight: model.coef[j]}
	}
	sort.SliceStable(features, func(a, b int) bool {
		return math.Abs(features[a].Weight) > math.Abs(features[b].Weight)
	})

	exp.Intercept[label] = model.intercept
	exp.LocalExp[label] = features
	exp.Score[label] = model.score(x, y, weights)
	exp.LocalPred[label] = model.predict(x.RawRowView(0))
	return nil
}

// selectFeatures keeps the numFeatures superpixels with the largest
// coefficients in a lightly regularised fit over all superpixels.
func (e *Explainer) selectFeatures(data *mat.Dense, y, weights []float64, numFeatures int) ([]int, error) {
	_, p := data.Dims()
	all := make([]int, p)
	for j := range all {
		all[j] = j
	}
	if numFeatures <= 0 || numFeatures >= p {
		return all, nil
	}

	model, err := fitRidge(data, y, weights, 0.01)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(a, b int) bool {
		return math.Abs(model.coef[all[a]]) > math.Abs(model.coef[all[b]])
	})
	return all[:numFeatures], nil
}

// classifySamples renders every perturbation and runs the classifier in batches.
func (e *Explainer) classifySamples(
	img, fudged []float64,
	segments []int,
	data *mat.Dense,
	classify ClassifierFunc,
	opts Options,
) ([][]float64, error) {
	rows, _ := data.Dims()

	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.StartNew(rows)
		defer bar.Finish()
	}

	probs := make([][]float64, 0, rows)
	batch := make([][]float64, 0, opts.BatchSize)
	flush := func() error {
		out, err := classify(batch)
		if err != nil {
			return errors.Wrap(err, "classify perturbations")
		}
		if len(out) != len(batch) {
			return errors.Errorf("classifier returned %d rows for %d images", len(out), len(batch))
		}
		probs = append(probs, out...)
		if bar != nil {
			bar.Add(len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for i := 0; i < rows; i++ {
		batch = append(batch, perturb(img, fudged, segments, data.RawRowView(i)))
		if len(batch) == opts.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return probs, nil
}

// compact maps segment ids onto 0..n-1 in increasing id order.
func compact(raw []int) ([]int, int) {
	ids := map[int]int{}
	for _, v := range raw {
		ids[v] = 0
	}
	sorted := make([]int, 0, len(ids))
	for v := range ids {
		sorted = append(sorted, v)
	}
	sort.Ints(sorted)
	for i, v := range sorted {
		ids[v] = i
	}

	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = ids[v]
	}
	return out, len(sorted)
}

// hideImage builds the image shown where a superpixel is switched off.
func hideImage(img []float64, segments []int, n int, hide *float64) []float64 {
	out := make([]float64, len(img))
	if hide != nil {
		for i := range out {
			out[i] = *hide
		}
		return out
	}

	sums := make([]float64, n*3)
	counts := make([]float64, n)
	for p, s := range segments {
		counts[s]++
		for c := 0; c < 3; c++ {
			sums[s*3+c] += img[p*3+c]
		}
	}
	for p, s := range segments {
		for c := 0; c < 3; c++ {
			out[p*3+c] = sums[s*3+c] / counts[s]
		}
	}
	return out
}

// sampleMasks draws rows of uniform on/off superpixel states. The first row
// keeps every superpixel so it reproduces the original image.
func sampleMasks(rng *rand.Rand, rows, n int) *mat.Dense {
	data := mat.NewDense(rows, n, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n; j++ {
			if i == 0 || rng.Intn(2) == 1 {
				data.Set(i, j, 1)
			}
		}
	}
	return data
}

// perturb replaces the switched off superpixels of img with fudged.
func perturb(img, fudged []float64, segments []int, row []float64) []float64 {
	out := append([]float64(nil), img...)
	for p, s := range segments {
		if row[s] == 0 {
			copy(out[p*3:p*3+3], fudged[p*3:p*3+3])
		}
	}
	return out
}

// cosineDistances returns the cosine distance of every row to the first one.
// A row with no active superpixel is at distance 1.
func cosineDistances(data *mat.Dense) []float64 {
	rows, _ := data.Dims()
	ref := data.RawRowView(0)
	refNorm := floats.Norm(ref, 2)

	out := make([]float64, rows)
	for i := range out {
		row := data.RawRowView(i)
		norm := floats.Norm(row, 2) * refNorm
		if norm == 0 {
			out[i] = 1
			continue
		}
		out[i] = math.Max(0, 1-floats.Dot(row, ref)/norm)
	}
	return out
}

// columns copies the selected columns of data.
func columns(data *mat.Dense, cols []int) *mat.Dense {
	rows, _ := data.Dims()
	out := mat.NewDense(rows, len(cols), nil)
	for i := 0; i < rows; i++ {
		for j, c := range cols {
			out.Set(i, j, data.At(i, c))
		}
	}
	return out
}

// topLabels returns the k most probable labels, most probable first.
func topLabels(probs []float64, k int) []int {
	if k > len(probs) {
		k = len(probs)
	}
	sorted := append([]float64(nil), probs...)
	inds := make([]int, len(sorted))
	floats.ArgsortStable(sorted, inds)

	out := make([]int, 0, k)
	for i := len(inds) - 1; i >= len(inds)-k; i-- {
		out = append(out, inds[i])
	}
	return out
}

// explainedLabels merges the top labels with the requested ones.
func explainedLabels(top, requested []int) []int {
	out := append([]int(nil), top...)
	for _, l := range requested {
		found := false
		for _, t := range out {
			if t == l {
				found = true
				break
			}
		}
		if !found {
			out = append(out, l)
		}
	}
	return out
}

func (f Feature) String() string {
	return fmt.Sprintf("segment %d: %+.4f", f.Segment, f.Weight)
}
