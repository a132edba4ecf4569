package models

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/config"
	"github.com/nvr-ai/go-explain/images"
)

// cnnLayer is one prepared layer of the convolutional stack.
type cnnLayer struct {
	LayerInfo
	name string
	// conv: weight (out, in, 3, 3), bias (1, out, 1, 1)
	// batchnorm: weight = folded scale, bias = folded shift, both (1, C, 1, 1)
	weight *tensor.Dense
	bias   *tensor.Dense
}

// linear is one fully connected layer with a pre-transposed (in, out) weight.
type linear struct {
	name   string
	weight *tensor.Dense
	bias   *tensor.Dense
}

// Classifier is a pretrained convolutional classifier.
type Classifier struct {
	arch   config.Architecture
	layers []cnnLayer
	head   []linear
	hooks  *hookRegistry
}

// NewClassifier prepares a classifier from a state dict.
//
// BatchNorm running statistics are folded into one scale and shift per
// channel, and Linear weights are transposed for row-major matmul.
//
// Arguments:
//   - arch: The classifier layout.
//   - state: Parameters, for example from LoadCheckpoint.
//
// Returns:
//   - *Classifier: The classifier.
//   - error: An error if a parameter is missing or has the wrong shape.
func NewClassifier(arch config.Architecture, state StateDict) (*Classifier, error) {
	if err := state.Validate(arch); err != nil {
		return nil, err
	}

	m := &Classifier{arch: arch, hooks: newHookRegistry()}

	side := arch.InputSize
	for b, channels := range arch.Blocks {
		for k, kind := range blockKinds {
			index := b*layersPerBlock + k
			if kind == LayerMaxPool {
				side /= 2
			}
			layer := cnnLayer{
				LayerInfo: LayerInfo{Index: index, Kind: kind, Channels: channels, Size: side},
				name:      fmt.Sprintf("cnn.%d", index),
			}

			switch kind {
			case LayerConv:
				layer.weight = state[layer.name+".weight"]
				layer.bias = channelTensor(state[layer.name+".bias"].Data().([]float32))
			case LayerBatchNorm:
				scale, shift := foldBatchNorm(
					state[layer.name+".weight"].Data().([]float32),
					state[layer.name+".bias"].Data().([]float32),
					state[layer.name+".running_mean"].Data().([]float32),
					state[layer.name+".running_var"].Data().([]float32),
					arch.BatchNormEpsilon,
				)
				layer.weight = channelTensor(scale)
				layer.bias = channelTensor(shift)
			}
			m.layers = append(m.layers, layer)
		}
	}

	for j := 0; j <= len(arch.Hidden); j++ {
		name := fmt.Sprintf("fc.%d", 2*j)
		w := state[name+".weight"]
		out, in := w.Shape()[0], w.Shape()[1]
		bias := state[name+".bias"].Data().([]float32)
		m.head = append(m.head, linear{
			name:   name,
			weight: transpose(w.Data().([]float32), out, in),
			bias: tensor.New(
				tensor.WithShape(1, out),
				tensor.WithBacking(append([]float32(nil), bias...)),
			),
		})
	}

	return m, nil
}

// Architecture returns the layout the classifier was built with.
func (m *Classifier) Architecture() config.Architecture {
	return m.arch
}

// Layers describes the convolutional stack.
func (m *Classifier) Layers() []LayerInfo {
	infos := make([]LayerInfo, len(m.layers))
	for i, l := range m.layers {
		infos[i] = l.LayerInfo
	}
	return infos
}

// RegisterForwardHook attaches hook to a cnn layer.
//
// The hook stays attached, and fires on every later Forward, until the
// returned handle is removed.
//
// Arguments:
//   - layer: Index into the cnn sequence.
//   - hook: Callback receiving the layer output node.
//
// Returns:
//   - *HookHandle: Handle used to detach the hook.
//   - error: An error if layer is out of range.
//
// @example
// var activation *G.Node
// handle, err := clf.RegisterForwardHook(15, func(_ int, out *G.Node) { activation = out })
// defer handle.Remove()
func (m *Classifier) RegisterForwardHook(layer int, hook ForwardHook) (*HookHandle, error) {
	if layer < 0 || layer >= len(m.layers) {
		return nil, errors.Errorf("layer %d out of range [0, %d)", layer, len(m.layers))
	}
	return m.hooks.add(layer, hook), nil
}

// HookCount returns the number of attached hooks.
func (m *Classifier) HookCount() int {
	return m.hooks.count()
}

// Forward adds the classifier on top of x to x's graph.
//
// Arguments:
//   - x: A (N, C, H, W) float32 node.
//
// Returns:
//   - *G.Node: The (N, classes) logits.
//   - error: An error if x has the wrong shape or an op cannot be built.
func (m *Classifier) Forward(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	a := m.arch
	if len(shape) != 4 || shape[1] != a.InputChannels || shape[2] != a.InputSize || shape[3] != a.InputSize {
		return nil, errors.Errorf("input shape %v, want (N, %d, %d, %d)", shape, a.InputChannels, a.InputSize, a.InputSize)
	}
	g := x.Graph()
	n := shape[0]

	h := x
	var err error
	for _, layer := range m.layers {
		switch layer.Kind {
		case LayerConv:
			w := param(g, layer.name+".weight", layer.weight)
			if h, err = G.Conv2d(h, w, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1}); err != nil {
				return nil, errors.Wrapf(err, "%s conv", layer.name)
			}
			if h, err = G.BroadcastAdd(h, param(g, layer.name+".bias", layer.bias), nil, []byte{0, 2, 3}); err != nil {
				return nil, errors.Wrapf(err, "%s bias", layer.name)
			}
		case LayerBatchNorm:
			if h, err = G.BroadcastHadamardProd(h, param(g, layer.name+".scale", layer.weight), nil, []byte{0, 2, 3}); err != nil {
				return nil, errors.Wrapf(err, "%s scale", layer.name)
			}
			if h, err = G.BroadcastAdd(h, param(g, layer.name+".shift", layer.bias), nil, []byte{0, 2, 3}); err != nil {
				return nil, errors.Wrapf(err, "%s shift", layer.name)
			}
		case LayerReLU:
			if h, err = G.Rectify(h); err != nil {
				return nil, errors.Wrapf(err, "%s relu", layer.name)
			}
		case LayerMaxPool:
			if h, err = G.MaxPool2D(h, tensor.Shape{2, 2}, []int{0, 0}, []int{2, 2}); err != nil {
				return nil, errors.Wrapf(err, "%s maxpool", layer.name)
			}
		}
		m.hooks.fire(layer.Index, h)
	}

	last := m.layers[len(m.layers)-1]
	if h, err = G.Reshape(h, tensor.Shape{n, last.Channels * last.Size * last.Size}); err != nil {
		return nil, errors.Wrap(err, "flatten")
	}

	for j, l := range m.head {
		if h, err = G.Mul(h, param(g, l.name+".weight", l.weight)); err != nil {
			return nil, errors.Wrapf(err, "%s matmul", l.name)
		}
		if h, err = G.BroadcastAdd(h, param(g, l.name+".bias", l.bias), nil, []byte{0}); err != nil {
			return nil, errors.Wrapf(err, "%s bias", l.name)
		}
		if j < len(m.head)-1 {
			if h, err = G.Rectify(h); err != nil {
				return nil, errors.Wrapf(err, "%s relu", l.name)
			}
		}
	}
	return h, nil
}

// Probabilities runs x through the classifier and applies a softmax.
//
// Arguments:
//   - x: A (N, C, H, W) float32 tensor.
//
// Returns:
//   - [][]float64: N rows of class probabilities.
//   - error: An error if the graph cannot be built or run.
func (m *Classifier) Probabilities(x *tensor.Dense) ([][]float64, error) {
	g := G.NewGraph()
	input := InputNode(g, x)

	logits, err := m.Forward(input)
	if err != nil {
		return nil, err
	}
	probs, err := G.SoftMax(logits)
	if err != nil {
		return nil, errors.Wrap(err, "softmax")
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "run classifier")
	}

	data := probs.Value().Data().([]float32)
	classes := m.arch.Classes
	rows := make([][]float64, x.Shape()[0])
	for i := range rows {
		rows[i] = make([]float64, classes)
		for c := 0; c < classes; c++ {
			rows[i][c] = float64(data[i*classes+c])
		}
	}
	return rows, nil
}

// Predict is a classifier function over pixel-major images.
//
// Arguments:
//   - batch: Images as H*W*C float64 slices in [0, 1].
//
// Returns:
//   - [][]float64: Class probabilities per image.
//   - error: An error if an image has the wrong size or inference fails.
func (m *Classifier) Predict(batch [][]float64) ([][]float64, error) {
	a := m.arch
	stride := a.InputChannels * a.InputSize * a.InputSize
	backing := make([]float32, 0, len(batch)*stride)
	for i, img := range batch {
		if len(img) != stride {
			return nil, errors.Errorf("image %d has %d values, want %d", i, len(img), stride)
		}
		backing = append(backing, images.HWCToCHW(img, a.InputChannels, a.InputSize, a.InputSize)...)
	}

	x := tensor.New(
		tensor.WithShape(len(batch), a.InputChannels, a.InputSize, a.InputSize),
		tensor.WithBacking(backing),
	)
	return m.Probabilities(x)
}

// InputNode creates a named input node holding x.
func InputNode(g *G.ExprGraph, x *tensor.Dense) *G.Node {
	return G.NewTensor(g, tensor.Float32, x.Dims(),
		G.WithShape(x.Shape()...),
		G.WithName("input"),
		G.WithValue(x),
	)
}

func param(g *G.ExprGraph, name string, t *tensor.Dense) *G.Node {
	return G.NewTensor(g, tensor.Float32, t.Dims(),
		G.WithShape(t.Shape()...),
		G.WithName(name),
		G.WithValue(t),
	)
}

// foldBatchNorm turns eval-mode BatchNorm into y = x*scale + shift.
func foldBatchNorm(gamma, beta, mean, variance []float32, eps float64) (scale, shift []float32) {
	scale = make([]float32, len(gamma))
	shift = make([]float32, len(gamma))
	for c := range gamma {
		s := float64(gamma[c]) / math.Sqrt(float64(variance[c])+eps)
		scale[c] = float32(s)
		shift[c] = float32(float64(beta[c]) - float64(mean[c])*s)
	}
	return scale, shift
}

// channelTensor shapes per-channel values as (1, C, 1, 1) for broadcasting.
func channelTensor(values []float32) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(1, len(values), 1, 1),
		tensor.WithBacking(append([]float32(nil), values...)),
	)
}

// transpose turns a row-major (rows, cols) matrix into (cols, rows).
func transpose(data []float32, rows, cols int) *tensor.Dense {
	out := make([]float32, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = data[r*cols+c]
		}
	}
	return tensor.New(tensor.WithShape(cols, rows), tensor.WithBacking(out))
}
