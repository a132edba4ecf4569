package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/config"
	"github.com/nvr-ai/go-explain/models"
)

func tinyClassifier(t *testing.T) *models.Classifier {
	t.Helper()

	arch := config.Architecture{
		InputChannels:    3,
		InputSize:        8,
		Blocks:           []int{4, 4},
		Hidden:           []int{8},
		Classes:          3,
		BatchNormEpsilon: 1e-5,
	}
	clf, err := models.NewClassifier(arch, models.RandomStateDict(arch, 5))
	require.NoError(t, err)
	return clf
}

func batch(n int) *tensor.Dense {
	data := make([]float32, n*3*8*8)
	for i := range data {
		data[i] = float32((i*13)%29) / 29
	}
	return tensor.New(tensor.WithShape(n, 3, 8, 8), tensor.WithBacking(data))
}

func TestExplainActivationsMatchLayerOutput(t *testing.T) {
	clf := tinyClassifier(t)
	x := batch(2)

	res, err := Explain(clf, x, Options{Layer: 3, Filter: 1, Iterations: 0, LearningRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 4}, res.Activations.Shape())
	assert.Equal(t, 0, clf.HookCount())

	// Capture the same layer independently.
	var out *G.Node
	handle, err := clf.RegisterForwardHook(3, func(_ int, n *G.Node) { out = n })
	require.NoError(t, err)
	defer handle.Remove()

	g := G.NewGraph()
	_, err = clf.Forward(models.InputNode(g, x))
	require.NoError(t, err)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	full := out.Value().Data().([]float32)
	got := res.Activations.Data().([]float32)
	plane := 16
	for i := 0; i < 2; i++ {
		want := full[(i*4+1)*plane : (i*4+2)*plane]
		assert.InDeltaSlice(t, want, got[i*plane:(i+1)*plane], 1e-6)
	}

	// Without iterations the visualization is the first input image.
	assert.Equal(t, tensor.Shape{3, 8, 8}, res.Visualization.Shape())
	assert.Equal(t, x.Data().([]float32)[:3*8*8], res.Visualization.Data())
	assert.Empty(t, res.Objective)
}

func TestExplainAscentIncreasesActivation(t *testing.T) {
	clf := tinyClassifier(t)
	x := batch(1)
	before := append([]float32(nil), x.Data().([]float32)...)

	// Layer 0 is a convolution, so the objective is linear in the input
	// and always has a non zero gradient.
	res, err := Explain(clf, x, Options{Layer: 0, Filter: 2, Iterations: 20, LearningRate: 0.05})
	require.NoError(t, err)

	require.Len(t, res.Objective, 20)
	assert.Greater(t, res.Objective[19], res.Objective[0])
	assert.NotEqual(t, before, res.Visualization.Data())

	// The batch passed in is not modified.
	assert.Equal(t, before, x.Data().([]float32))
	assert.Equal(t, 0, clf.HookCount())
}

func TestExplainValidatesOptions(t *testing.T) {
	clf := tinyClassifier(t)

	_, err := Explain(clf, batch(1), Options{Layer: 8, Filter: 0})
	assert.Error(t, err)

	_, err = Explain(clf, batch(1), Options{Layer: 1, Filter: 4})
	assert.Error(t, err)

	assert.Equal(t, 0, clf.HookCount())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(15, 0)
	assert.Equal(t, 100, opts.Iterations)
	assert.Equal(t, 1.0, opts.LearningRate)
}
