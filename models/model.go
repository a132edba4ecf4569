// Package models - Convolutional image classifier evaluated on a gorgonia graph.
//
// The classifier mirrors a PyTorch module with two nn.Sequential children:
// "cnn" (Conv2d, BatchNorm2d, ReLU, MaxPool2d repeated per block) and "fc"
// (Linear/ReLU pairs ending in a Linear). Weights are loaded once from a
// checkpoint and never mutated.
package models

// LayerKind identifies one layer of the convolutional stack.
type LayerKind string

const (
	// LayerConv is a 3x3 convolution with padding 1 and a bias.
	LayerConv LayerKind = "conv"
	// LayerBatchNorm is an eval-mode batch normalization.
	LayerBatchNorm LayerKind = "batchnorm"
	// LayerReLU is a rectifier.
	LayerReLU LayerKind = "relu"
	// LayerMaxPool is a 2x2 max pooling with stride 2.
	LayerMaxPool LayerKind = "maxpool"
)

// layersPerBlock is the number of cnn layers produced by one block.
const layersPerBlock = 4

// blockKinds is the layer order inside a block.
var blockKinds = [layersPerBlock]LayerKind{LayerConv, LayerBatchNorm, LayerReLU, LayerMaxPool}

// LayerInfo describes one layer of the convolutional stack.
type LayerInfo struct {
	// Index is the position inside the cnn sequence.
	Index int
	// Kind is the layer type.
	Kind LayerKind
	// Channels is the number of output channels.
	Channels int
	// Size is the spatial side length of the output.
	Size int
}
