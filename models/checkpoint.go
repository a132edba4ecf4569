package models

import (
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/config"
)

// StateDictKey is the checkpoint entry holding the model parameters.
const StateDictKey = "model_state_dict"

// LoadCheckpoint reads a PyTorch checkpoint saved with torch.save.
//
// The file may hold the state dict directly or a dict with a
// "model_state_dict" entry. Only the parameters arch needs are converted.
//
// Arguments:
//   - path: Path of the .pth file.
//   - arch: The classifier layout.
//
// Returns:
//   - StateDict: The parameters as float32 tensors.
//   - error: An error if the file cannot be unpickled or a parameter is missing.
//
// @example
// state, err := models.LoadCheckpoint("./checkpoint.pth", config.DefaultArchitecture())
func LoadCheckpoint(path string, arch config.Architecture) (StateDict, error) {
	root, err := pytorch.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load checkpoint %s", path)
	}

	dict := root
	if nested, ok := lookup(root, StateDictKey); ok {
		dict = nested
	}

	state := make(StateDict)
	for _, spec := range ParamSpecs(arch) {
		value, ok := lookup(dict, spec.Name)
		if !ok {
			return nil, errors.Errorf("checkpoint %s has no parameter %s", path, spec.Name)
		}
		t, ok := value.(*pytorch.Tensor)
		if !ok {
			return nil, errors.Errorf("checkpoint parameter %s is %T, not a tensor", spec.Name, value)
		}
		dense, err := toDense(t)
		if err != nil {
			return nil, errors.Wrapf(err, "convert parameter %s", spec.Name)
		}
		state[spec.Name] = dense
	}

	if err := state.Validate(arch); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", path)
	}
	return state, nil
}

// lookup reads key from an unpickled dict or OrderedDict.
func lookup(obj interface{}, key string) (interface{}, bool) {
	switch d := obj.(type) {
	case *types.OrderedDict:
		return d.Get(key)
	case *types.Dict:
		return d.Get(key)
	default:
		return nil, false
	}
}

// toDense copies a (possibly strided) PyTorch tensor into a contiguous float32 tensor.
func toDense(t *pytorch.Tensor) (*tensor.Dense, error) {
	var read func(i int) float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		read = func(i int) float32 { return s.Data[i] }
	case *pytorch.DoubleStorage:
		read = func(i int) float32 { return float32(s.Data[i]) }
	default:
		return nil, errors.Errorf("unsupported storage %T", t.Source)
	}

	shape := append([]int(nil), t.Size...)
	n := 1
	for _, d := range shape {
		n *= d
	}

	out := make([]float32, n)
	index := make([]int, len(shape))
	for i := 0; i < n; i++ {
		offset := t.StorageOffset
		for d := range shape {
			offset += index[d] * t.Stride[d]
		}
		out[i] = read(offset)

		for d := len(shape) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}

	if len(shape) == 0 {
		shape = []int{1}
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
}
