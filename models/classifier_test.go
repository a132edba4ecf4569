package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/config"
	"github.com/nvr-ai/go-explain/images"
)

// tinyArch is a two block network small enough for unit tests.
func tinyArch() config.Architecture {
	return config.Architecture{
		InputChannels:    3,
		InputSize:        8,
		Blocks:           []int{2, 3},
		Hidden:           []int{4},
		Classes:          3,
		BatchNormEpsilon: 1e-5,
	}
}

func randomInput(n int, arch config.Architecture, seed int) *tensor.Dense {
	size := n * arch.InputChannels * arch.InputSize * arch.InputSize
	data := make([]float32, size)
	for i := range data {
		data[i] = float32((i*7+seed)%13) / 13
	}
	return tensor.New(
		tensor.WithShape(n, arch.InputChannels, arch.InputSize, arch.InputSize),
		tensor.WithBacking(data),
	)
}

func TestParamSpecs(t *testing.T) {
	specs := ParamSpecs(tinyArch())
	byName := make(map[string]tensor.Shape, len(specs))
	for _, s := range specs {
		byName[s.Name] = s.Shape
	}

	assert.Len(t, specs, 2*6+2*2)
	assert.Equal(t, tensor.Shape{2, 3, 3, 3}, byName["cnn.0.weight"])
	assert.Equal(t, tensor.Shape{3}, byName["cnn.5.running_var"])
	// 3 channels * 2 * 2 after two pools.
	assert.Equal(t, tensor.Shape{4, 12}, byName["fc.0.weight"])
	assert.Equal(t, tensor.Shape{3, 4}, byName["fc.2.weight"])
	assert.Equal(t, tensor.Shape{3}, byName["fc.2.bias"])
}

func TestDefaultArchitectureFirstLinear(t *testing.T) {
	for _, s := range ParamSpecs(config.DefaultArchitecture()) {
		if s.Name == "fc.0.weight" {
			assert.Equal(t, tensor.Shape{1024, 512 * 4 * 4}, s.Shape)
			return
		}
	}
	t.Fatal("fc.0.weight not listed")
}

func TestNewClassifierRejectsIncompleteState(t *testing.T) {
	state := RandomStateDict(tinyArch(), 1)
	delete(state, "cnn.1.running_mean")

	_, err := NewClassifier(tinyArch(), state)
	assert.Error(t, err)

	state = RandomStateDict(tinyArch(), 1)
	state["fc.0.bias"] = tensor.New(tensor.WithShape(5), tensor.Of(tensor.Float32))
	_, err = NewClassifier(tinyArch(), state)
	assert.Error(t, err)
}

func TestLayers(t *testing.T) {
	clf, err := NewClassifier(tinyArch(), RandomStateDict(tinyArch(), 1))
	require.NoError(t, err)

	layers := clf.Layers()
	require.Len(t, layers, 8)
	assert.Equal(t, LayerInfo{Index: 3, Kind: LayerMaxPool, Channels: 2, Size: 4}, layers[3])
	assert.Equal(t, LayerInfo{Index: 4, Kind: LayerConv, Channels: 3, Size: 4}, layers[4])
	assert.Equal(t, LayerInfo{Index: 7, Kind: LayerMaxPool, Channels: 3, Size: 2}, layers[7])
}

func TestProbabilitiesSumToOne(t *testing.T) {
	arch := tinyArch()
	clf, err := NewClassifier(arch, RandomStateDict(arch, 7))
	require.NoError(t, err)

	probs, err := clf.Probabilities(randomInput(2, arch, 3))
	require.NoError(t, err)
	require.Len(t, probs, 2)

	for _, row := range probs {
		require.Len(t, row, arch.Classes)
		sum := 0.0
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestPredictMatchesProbabilities(t *testing.T) {
	arch := tinyArch()
	clf, err := NewClassifier(arch, RandomStateDict(arch, 7))
	require.NoError(t, err)

	x := randomInput(1, arch, 5)
	want, err := clf.Probabilities(x)
	require.NoError(t, err)

	hwc := images.CHWToHWC(x.Data().([]float32), 3, arch.InputSize, arch.InputSize)
	got, err := clf.Predict([][]float64{hwc})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0], got[0], 1e-6)

	_, err = clf.Predict([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

// TestForwardKnownWeights checks conv, batchnorm, relu, pool and linear
// against a hand computed result.
func TestForwardKnownWeights(t *testing.T) {
	arch := config.Architecture{
		InputChannels:    1,
		InputSize:        2,
		Blocks:           []int{1},
		Classes:          1,
		BatchNormEpsilon: 0,
	}
	state := RandomStateDict(arch, 1)

	// Identity 3x3 kernel.
	kernel := make([]float32, 9)
	kernel[4] = 1
	state["cnn.0.weight"] = tensor.New(tensor.WithShape(1, 1, 3, 3), tensor.WithBacking(kernel))
	state["cnn.0.bias"] = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{-1}))
	// BatchNorm: (x - 1) / sqrt(4) * 3 + 0.5
	state["cnn.1.weight"] = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{3}))
	state["cnn.1.bias"] = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{0.5}))
	state["cnn.1.running_mean"] = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{1}))
	state["cnn.1.running_var"] = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{4}))
	state["fc.0.weight"] = tensor.New(tensor.WithShape(1, 1), tensor.WithBacking([]float32{2}))
	state["fc.0.bias"] = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{0.25}))

	clf, err := NewClassifier(arch, state)
	require.NoError(t, err)

	g := G.NewGraph()
	x := InputNode(g, tensor.New(tensor.WithShape(1, 1, 2, 2), tensor.WithBacking([]float32{1, 2, 3, 6})))
	logits, err := clf.Forward(x)
	require.NoError(t, err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	// conv: x - 1 = {0, 1, 2, 5}; bn: (v - 1) * 1.5 + 0.5 = {-1, 0.5, 2, 6.5}
	// relu + pool: 6.5; linear: 2 * 6.5 + 0.25
	out := logits.Value().Data().([]float32)
	require.Len(t, out, 1)
	assert.InDelta(t, 13.25, out[0], 1e-4)
}

func TestForwardRejectsWrongShape(t *testing.T) {
	arch := tinyArch()
	clf, err := NewClassifier(arch, RandomStateDict(arch, 1))
	require.NoError(t, err)

	g := G.NewGraph()
	x := InputNode(g, tensor.New(tensor.WithShape(1, 3, 4, 4), tensor.Of(tensor.Float32)))
	_, err = clf.Forward(x)
	assert.Error(t, err)
}

func TestForwardHookLifecycle(t *testing.T) {
	arch := tinyArch()
	clf, err := NewClassifier(arch, RandomStateDict(arch, 1))
	require.NoError(t, err)

	var captured *G.Node
	calls := 0
	handle, err := clf.RegisterForwardHook(2, func(layer int, out *G.Node) {
		assert.Equal(t, 2, layer)
		captured = out
		calls++
	})
	require.NoError(t, err)
	assert.Equal(t, 1, clf.HookCount())
	assert.Equal(t, 2, handle.Layer())

	g := G.NewGraph()
	_, err = clf.Forward(InputNode(g, randomInput(2, arch, 1)))
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, tensor.Shape{2, 2, 8, 8}, captured.Shape())
	assert.Equal(t, 1, calls)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
	// ReLU output is non negative.
	for _, v := range captured.Value().Data().([]float32) {
		assert.GreaterOrEqual(t, v, float32(0))
	}

	handle.Remove()
	handle.Remove()
	assert.Equal(t, 0, clf.HookCount())

	_, err = clf.Probabilities(randomInput(1, arch, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRegisterForwardHookOutOfRange(t *testing.T) {
	arch := tinyArch()
	clf, err := NewClassifier(arch, RandomStateDict(arch, 1))
	require.NoError(t, err)

	_, err = clf.RegisterForwardHook(8, func(int, *G.Node) {})
	assert.Error(t, err)
	_, err = clf.RegisterForwardHook(-1, func(int, *G.Node) {})
	assert.Error(t, err)
}

func TestFoldBatchNorm(t *testing.T) {
	scale, shift := foldBatchNorm([]float32{2}, []float32{1}, []float32{3}, []float32{3}, 1)
	// scale = 2 / sqrt(4) = 1, shift = 1 - 3 * 1
	assert.InDelta(t, 1, scale[0], 1e-6)
	assert.InDelta(t, -2, shift[0], 1e-6)
}

func TestTranspose(t *testing.T) {
	out := transpose([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Data())
}

func TestFood11Classes(t *testing.T) {
	assert.Len(t, Food11Classes.Classes, 11)
	assert.Equal(t, "Soup", Food11Classes.LookupName(9))
	assert.Equal(t, "class 42", Food11Classes.LookupName(42))
}
