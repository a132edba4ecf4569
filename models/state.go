package models

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/config"
)

// StateDict maps PyTorch parameter names to their values.
type StateDict map[string]*tensor.Dense

// ParamSpec is the name and expected shape of one parameter.
type ParamSpec struct {
	Name  string
	Shape tensor.Shape
}

// ParamSpecs lists every parameter the architecture reads from a checkpoint.
//
// Arguments:
//   - arch: The classifier layout.
//
// Returns:
//   - []ParamSpec: Parameter names in PyTorch state-dict notation with shapes.
func ParamSpecs(arch config.Architecture) []ParamSpec {
	var specs []ParamSpec

	in := arch.InputChannels
	for b, out := range arch.Blocks {
		conv := fmt.Sprintf("cnn.%d", b*layersPerBlock)
		bn := fmt.Sprintf("cnn.%d", b*layersPerBlock+1)
		specs = append(specs,
			ParamSpec{conv + ".weight", tensor.Shape{out, in, 3, 3}},
			ParamSpec{conv + ".bias", tensor.Shape{out}},
			ParamSpec{bn + ".weight", tensor.Shape{out}},
			ParamSpec{bn + ".bias", tensor.Shape{out}},
			ParamSpec{bn + ".running_mean", tensor.Shape{out}},
			ParamSpec{bn + ".running_var", tensor.Shape{out}},
		)
		in = out
	}

	side := arch.InputSize >> len(arch.Blocks)
	in = in * side * side
	widths := append(append([]int(nil), arch.Hidden...), arch.Classes)
	for j, out := range widths {
		fc := fmt.Sprintf("fc.%d", 2*j)
		specs = append(specs,
			ParamSpec{fc + ".weight", tensor.Shape{out, in}},
			ParamSpec{fc + ".bias", tensor.Shape{out}},
		)
		in = out
	}
	return specs
}

// Validate checks that every parameter of arch is present with the right shape.
func (s StateDict) Validate(arch config.Architecture) error {
	for _, spec := range ParamSpecs(arch) {
		t, ok := s[spec.Name]
		if !ok {
			return errors.Errorf("missing parameter %s", spec.Name)
		}
		if !t.Shape().Eq(spec.Shape) {
			return errors.Errorf("parameter %s has shape %v, want %v", spec.Name, t.Shape(), spec.Shape)
		}
	}
	return nil
}

// RandomStateDict fills every parameter of arch with He-initialised weights.
//
// BatchNorm layers start as the identity (unit weight and variance, zero bias
// and mean). It is used for dry runs without a checkpoint and in tests.
//
// Arguments:
//   - arch: The classifier layout.
//   - seed: Seed of the random source.
//
// Returns:
//   - StateDict: A complete state dict.
func RandomStateDict(arch config.Architecture, seed int64) StateDict {
	rng := rand.New(rand.NewSource(seed))
	state := make(StateDict)

	for _, spec := range ParamSpecs(arch) {
		data := make([]float32, spec.Shape.TotalSize())
		switch {
		case strings.HasSuffix(spec.Name, ".running_var"):
			fill(data, 1)
		case len(spec.Shape) == 1 && isBatchNorm(spec.Name) && strings.HasSuffix(spec.Name, ".weight"):
			fill(data, 1)
		case len(spec.Shape) > 1:
			fanIn := spec.Shape.TotalSize() / spec.Shape[0]
			std := math.Sqrt(2.0 / float64(fanIn))
			for i := range data {
				data[i] = float32(rng.NormFloat64() * std)
			}
		}
		state[spec.Name] = tensor.New(tensor.WithShape(spec.Shape...), tensor.WithBacking(data))
	}
	return state
}

func fill(data []float32, v float32) {
	for i := range data {
		data[i] = v
	}
}

// isBatchNorm reports whether a cnn parameter belongs to a BatchNorm layer.
func isBatchNorm(name string) bool {
	var index int
	var rest string
	if _, err := fmt.Sscanf(name, "cnn.%d.%s", &index, &rest); err != nil {
		return false
	}
	return index%layersPerBlock == 1
}
