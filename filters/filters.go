// Package filters - Filter activations and activation maximization.
//
// A filter is one output channel of a cnn layer. Its activation map shows
// where real images excite it, and its visualization is the input obtained by
// gradient ascent on the filter's total activation.
package filters

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/models"
)

// Options selects the filter and the optimization schedule.
type Options struct {
	// Layer is the index in the cnn sequence.
	Layer int
	// Filter is the channel of Layer to explain.
	Filter int
	// Iterations is the number of gradient ascent steps.
	Iterations int
	// LearningRate is the Adam step size.
	LearningRate float64
}

// DefaultOptions returns 100 Adam steps with learning rate 1.
func DefaultOptions(layer, filter int) Options {
	return Options{
		Layer:        layer,
		Filter:       filter,
		Iterations:   100,
		LearningRate: 1,
	}
}

// Result holds both views of a filter.
type Result struct {
	// Activations is the (N, H', W') response of the filter to each input image.
	Activations *tensor.Dense
	// Visualization is the (C, H, W) optimized version of the first input.
	Visualization *tensor.Dense
	// Objective is the summed filter activation before every ascent step.
	Objective []float64
}

// Explain computes the filter activations and the filter visualization.
//
// One forward hook is attached to opts.Layer for the duration of the call and
// removed before returning, so later forward passes are unaffected.
//
// Arguments:
//   - clf: The classifier.
//   - x: A (N, C, H, W) batch used both for activations and as the starting point.
//   - opts: Layer, filter and schedule.
//
// Returns:
//   - *Result: Activations, visualization and objective history.
//   - error: An error if the layer or filter is out of range or a graph fails.
//
// @example
// res, err := filters.Explain(clf, batch.Images, filters.Options{Layer: 15, Iterations: 100, LearningRate: 0.1})
func Explain(clf *models.Classifier, x *tensor.Dense, opts Options) (*Result, error) {
	layers := clf.Layers()
	if opts.Layer < 0 || opts.Layer >= len(layers) {
		return nil, errors.Errorf("layer %d out of range [0, %d)", opts.Layer, len(layers))
	}
	if channels := layers[opts.Layer].Channels; opts.Filter < 0 || opts.Filter >= channels {
		return nil, errors.Errorf("filter %d out of range [0, %d) for layer %d", opts.Filter, channels, opts.Layer)
	}

	var activation *G.Node
	handle, err := clf.RegisterForwardHook(opts.Layer, func(_ int, output *G.Node) {
		activation = output
	})
	if err != nil {
		return nil, err
	}
	defer handle.Remove()

	activations, err := filterActivations(clf, x, opts.Filter, &activation)
	if err != nil {
		return nil, err
	}

	visualization, objective, err := visualize(clf, x, opts, &activation)
	if err != nil {
		return nil, err
	}

	return &Result{
		Activations:   activations,
		Visualization: visualization,
		Objective:     objective,
	}, nil
}

// filterActivations runs x once and copies channel filter of the hooked layer.
func filterActivations(clf *models.Classifier, x *tensor.Dense, filter int, activation **G.Node) (*tensor.Dense, error) {
	g := G.NewGraph()
	if _, err := clf.Forward(models.InputNode(g, x.Clone().(*tensor.Dense))); err != nil {
		return nil, err
	}
	if *activation == nil {
		return nil, errors.New("forward hook did not fire")
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "run activation graph")
	}

	shape := (*activation).Shape()
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	data := (*activation).Value().Data().([]float32)
	plane := h * w

	out := make([]float32, 0, n*plane)
	for i := 0; i < n; i++ {
		start := (i*c + filter) * plane
		out = append(out, data[start:start+plane]...)
	}
	return tensor.New(tensor.WithShape(n, h, w), tensor.WithBacking(out)), nil
}

// visualize performs gradient ascent on the summed filter activation.
func visualize(clf *models.Classifier, x *tensor.Dense, opts Options, activation **G.Node) (*tensor.Dense, []float64, error) {
	g := G.NewGraph()
	input := models.InputNode(g, x.Clone().(*tensor.Dense))
	if _, err := clf.Forward(input); err != nil {
		return nil, nil, err
	}

	channel, err := G.Slice(*activation, nil, G.S(opts.Filter))
	if err != nil {
		return nil, nil, errors.Wrap(err, "slice filter")
	}
	total, err := G.Sum(channel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "sum filter")
	}
	// Minimizing the negated activation maximizes the filter response.
	objective, err := G.Neg(total)
	if err != nil {
		return nil, nil, errors.Wrap(err, "negate objective")
	}
	if _, err := G.Grad(objective, input); err != nil {
		return nil, nil, errors.Wrap(err, "backpropagate objective")
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(input))
	defer vm.Close()
	solver := G.NewAdamSolver(G.WithLearnRate(opts.LearningRate))

	history := make([]float64, 0, opts.Iterations)
	for i := 0; i < opts.Iterations; i++ {
		if err := vm.RunAll(); err != nil {
			return nil, nil, errors.Wrapf(err, "run ascent step %d", i)
		}
		history = append(history, -float64(objective.Value().Data().(float32)))

		if err := solver.Step(G.NodesToValueGrads(G.Nodes{input})); err != nil {
			return nil, nil, errors.Wrapf(err, "adam step %d", i)
		}
		vm.Reset()
	}

	shape := input.Shape()
	stride := shape[1] * shape[2] * shape[3]
	data := input.Value().Data().([]float32)
	first := append([]float32(nil), data[:stride]...)
	return tensor.New(tensor.WithShape(shape[1], shape[2], shape[3]), tensor.WithBacking(first)), history, nil
}
