// Package config - Run configuration for the explanation toolkit.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Architecture describes the convolutional classifier stored in the checkpoint.
//
// Every entry of Blocks produces four layers in order: Conv2d (3x3, padding 1),
// BatchNorm, ReLU and MaxPool (2x2). Layer indices therefore follow the
// PyTorch nn.Sequential numbering of the "cnn" module, so block b owns layers
// 4b..4b+3.
type Architecture struct {
	// InputChannels is the number of input channels (3 for RGB).
	InputChannels int `json:"input_channels" yaml:"input_channels"`
	// InputSize is the square input side in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`
	// Blocks lists the output channels of every convolution block.
	Blocks []int `json:"blocks" yaml:"blocks"`
	// Hidden lists the hidden widths of the fully connected head.
	Hidden []int `json:"hidden" yaml:"hidden"`
	// Classes is the number of output classes.
	Classes int `json:"classes" yaml:"classes"`
	// BatchNormEpsilon is the epsilon used by the BatchNorm layers.
	BatchNormEpsilon float64 `json:"batch_norm_epsilon" yaml:"batch_norm_epsilon"`
}

// SaliencyConfig configures the saliency stage.
type SaliencyConfig struct {
	Indices []int `json:"indices" yaml:"indices"`
}

// FilterConfig configures the filter explanation stage.
type FilterConfig struct {
	Indices      []int   `json:"indices" yaml:"indices"`
	Layer        int     `json:"layer" yaml:"layer"`
	Filter       int     `json:"filter" yaml:"filter"`
	Iterations   int     `json:"iterations" yaml:"iterations"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
}

// LimeConfig configures the local explanation stage.
type LimeConfig struct {
	Indices     []int   `json:"indices" yaml:"indices"`
	Segments    int     `json:"segments" yaml:"segments"`
	Compactness float64 `json:"compactness" yaml:"compactness"`
	Sigma       float64 `json:"sigma" yaml:"sigma"`
	NumSamples  int     `json:"num_samples" yaml:"num_samples"`
	BatchSize   int     `json:"batch_size" yaml:"batch_size"`
	TopLabels   int     `json:"top_labels" yaml:"top_labels"`
	NumFeatures int     `json:"num_features" yaml:"num_features"`
	MinWeight   float64 `json:"min_weight" yaml:"min_weight"`
	Seed        int64   `json:"seed" yaml:"seed"`
	// ONNXModel optionally routes LIME inference through onnxruntime.
	ONNXModel string `json:"onnx_model" yaml:"onnx_model"`
	// ONNXLibrary is the path of the onnxruntime shared library.
	ONNXLibrary string `json:"onnx_library" yaml:"onnx_library"`
}

// Config is the complete run configuration.
type Config struct {
	Checkpoint   string         `json:"checkpoint" yaml:"checkpoint"`
	DatasetDir   string         `json:"dataset_dir" yaml:"dataset_dir"`
	Split        string         `json:"split" yaml:"split"`
	OutputDir    string         `json:"output_dir" yaml:"output_dir"`
	Show         bool           `json:"show" yaml:"show"`
	Architecture Architecture   `json:"architecture" yaml:"architecture"`
	Saliency     SaliencyConfig `json:"saliency" yaml:"saliency"`
	Filters      FilterConfig   `json:"filters" yaml:"filters"`
	Lime         LimeConfig     `json:"lime" yaml:"lime"`
}

// DefaultIndices are the training images visualised by every stage.
var DefaultIndices = []int{83, 4218, 4707, 8598}

// DefaultArchitecture returns the Food-11 classifier layout.
//
// Returns:
//   - Architecture: five conv blocks (64..512 channels) on 128x128 RGB input
//     and a 1024-512-11 head.
func DefaultArchitecture() Architecture {
	return Architecture{
		InputChannels:    3,
		InputSize:        128,
		Blocks:           []int{64, 128, 256, 512, 512},
		Hidden:           []int{1024, 512},
		Classes:          11,
		BatchNormEpsilon: 1e-5,
	}
}

// DefaultConfig returns the configuration used when no file is supplied.
//
// Returns:
//   - Config: Configuration matching the reference notebook run.
//
// @example
// cfg := config.DefaultConfig()
// cfg.Checkpoint = "/models/food11.pth"
func DefaultConfig() Config {
	return Config{
		Checkpoint:   "./checkpoint.pth",
		DatasetDir:   "./food-11/",
		Split:        "training",
		Architecture: DefaultArchitecture(),
		Saliency: SaliencyConfig{
			Indices: append([]int(nil), DefaultIndices...),
		},
		Filters: FilterConfig{
			Indices:      append([]int(nil), DefaultIndices...),
			Layer:        15,
			Filter:       0,
			Iterations:   100,
			LearningRate: 0.1,
		},
		Lime: LimeConfig{
			Indices:     append([]int(nil), DefaultIndices...),
			Segments:    100,
			Compactness: 1,
			Sigma:       1,
			NumSamples:  1000,
			BatchSize:   10,
			TopLabels:   5,
			NumFeatures: 11,
			MinWeight:   0.05,
			Seed:        16,
		},
	}
}

// Load reads a YAML file on top of DefaultConfig.
//
// Arguments:
//   - path: Path of the YAML file. An empty path returns the defaults.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a stage.
func (c Config) Validate() error {
	a := c.Architecture
	if a.InputChannels <= 0 || a.InputSize <= 0 || a.Classes <= 0 {
		return errors.Errorf("architecture needs positive input_channels, input_size and classes, got %d/%d/%d",
			a.InputChannels, a.InputSize, a.Classes)
	}
	if len(a.Blocks) == 0 {
		return errors.New("architecture needs at least one conv block")
	}
	if a.InputSize>>len(a.Blocks) == 0 {
		return errors.Errorf("input_size %d is too small for %d pooling blocks", a.InputSize, len(a.Blocks))
	}
	if c.Filters.Layer < 0 || c.Filters.Layer >= 4*len(a.Blocks) {
		return errors.Errorf("filters.layer %d out of range [0, %d)", c.Filters.Layer, 4*len(a.Blocks))
	}
	if channels := a.Blocks[c.Filters.Layer/4]; c.Filters.Filter < 0 || c.Filters.Filter >= channels {
		return errors.Errorf("filters.filter %d out of range [0, %d)", c.Filters.Filter, channels)
	}
	if c.Filters.Iterations < 0 {
		return errors.Errorf("filters.iterations must not be negative, got %d", c.Filters.Iterations)
	}
	if c.Lime.Segments <= 0 {
		return errors.Errorf("lime.segments must be positive, got %d", c.Lime.Segments)
	}
	if c.Lime.NumSamples <= 0 || c.Lime.BatchSize <= 0 {
		return errors.Errorf("lime.num_samples and lime.batch_size must be positive, got %d/%d",
			c.Lime.NumSamples, c.Lime.BatchSize)
	}
	return nil
}
