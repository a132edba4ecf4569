// Package saliency - Gradient saliency maps.
//
// A saliency map is the magnitude of the gradient of the classification loss
// with respect to every input pixel: large values mark pixels whose small
// changes move the loss the most.
package saliency

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/images"
	"github.com/nvr-ai/go-explain/models"
)

// Compute returns the normalized saliency of every image in x.
//
// The input is made differentiable, passed through the classifier, scored with
// the mean cross-entropy against labels and backpropagated. The absolute input
// gradient of every sample is then min-max normalized on its own, because
// gradient scales differ by orders of magnitude between images. A sample with
// a constant gradient yields NaN.
//
// Arguments:
//   - clf: The classifier.
//   - x: A (N, C, H, W) float32 batch.
//   - labels: The true class of every image.
//
// Returns:
//   - *tensor.Dense: (N, C, H, W) saliency in [0, 1].
//   - error: An error if the shapes disagree or the graph fails.
//
// @example
// maps, err := saliency.Compute(clf, batch.Images, batch.Labels)
func Compute(clf *models.Classifier, x *tensor.Dense, labels []int) (*tensor.Dense, error) {
	raw, err := Gradients(clf, x, labels)
	if err != nil {
		return nil, err
	}

	shape := raw.Shape()
	stride := shape[1] * shape[2] * shape[3]
	normalized := images.MinMaxPerSample(raw.Data().([]float32), stride)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(normalized)), nil
}

// Gradients returns |d loss / d x| without normalization.
func Gradients(clf *models.Classifier, x *tensor.Dense, labels []int) (*tensor.Dense, error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("input must be (N, C, H, W), got %v", shape)
	}
	n := shape[0]
	if len(labels) != n {
		return nil, errors.Errorf("got %d labels for %d images", len(labels), n)
	}

	classes := clf.Architecture().Classes
	oneHot := make([]float32, n*classes)
	for i, label := range labels {
		if label < 0 || label >= classes {
			return nil, errors.Errorf("label %d of image %d out of range [0, %d)", label, i, classes)
		}
		oneHot[i*classes+label] = 1
	}

	// The input is cloned so the caller's batch is not aliased by the graph.
	g := G.NewGraph()
	input := models.InputNode(g, x.Clone().(*tensor.Dense))

	logits, err := clf.Forward(input)
	if err != nil {
		return nil, err
	}
	loss, err := CrossEntropy(logits, tensor.New(tensor.WithShape(n, classes), tensor.WithBacking(oneHot)))
	if err != nil {
		return nil, err
	}
	if _, err := G.Grad(loss, input); err != nil {
		return nil, errors.Wrap(err, "backpropagate loss")
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(input))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "run saliency graph")
	}

	grad, err := input.Grad()
	if err != nil {
		return nil, errors.Wrap(err, "read input gradient")
	}

	data := grad.Data().([]float32)
	abs := make([]float32, len(data))
	for i, v := range data {
		if v < 0 {
			v = -v
		}
		abs[i] = v
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(abs)), nil
}

// CrossEntropy builds the mean negative log-likelihood of oneHot targets.
//
// Arguments:
//   - logits: (N, K) unnormalized scores.
//   - oneHot: (N, K) targets with a single 1 per row.
//
// Returns:
//   - *G.Node: A scalar loss node.
//   - error: An error if an op cannot be built.
func CrossEntropy(logits *G.Node, oneHot *tensor.Dense) (*G.Node, error) {
	g := logits.Graph()
	n := logits.Shape()[0]

	probs, err := G.SoftMax(logits)
	if err != nil {
		return nil, errors.Wrap(err, "softmax")
	}
	logProbs, err := G.Log(probs)
	if err != nil {
		return nil, errors.Wrap(err, "log")
	}
	targets := G.NewMatrix(g, tensor.Float32,
		G.WithShape(oneHot.Shape()...),
		G.WithName("targets"),
		G.WithValue(oneHot),
	)
	picked, err := G.HadamardProd(logProbs, targets)
	if err != nil {
		return nil, errors.Wrap(err, "pick target log-probabilities")
	}
	total, err := G.Sum(picked)
	if err != nil {
		return nil, errors.Wrap(err, "sum")
	}
	mean, err := G.Div(total, G.NewConstant(float32(-n)))
	if err != nil {
		return nil, errors.Wrap(err, "mean")
	}
	return mean, nil
}
