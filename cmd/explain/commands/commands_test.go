package commands

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyConfig = `
architecture:
  input_channels: 3
  input_size: 8
  blocks: [4, 4]
  hidden: [8]
  classes: 3
  batch_norm_epsilon: 0.00001
filters:
  layer: 4
  filter: 1
  iterations: 2
  learning_rate: 0.1
lime:
  segments: 4
  num_samples: 20
  batch_size: 5
  top_labels: 2
`

// createTestPNG writes a 16x16 gradient image.
func createTestPNG(t *testing.T, path string, shade uint8) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 16), B: uint8(y * 16), A: 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func setup(t *testing.T) (root, cfgPath string) {
	t.Helper()

	root = t.TempDir()
	split := filepath.Join(root, "training")
	require.NoError(t, os.MkdirAll(split, 0o755))
	for i := 0; i < 3; i++ {
		createTestPNG(t, filepath.Join(split, fmt.Sprintf("%d_%d.png", i, i)), uint8(60*i))
	}

	cfgPath = filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(tinyConfig), 0o644))
	return root, cfgPath
}

func run(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestAllStagesWriteFigures(t *testing.T) {
	root, cfgPath := setup(t)
	out := filepath.Join(root, "figures")

	err := run(t, "all",
		"--config", cfgPath,
		"--dataset", root,
		"--split", "training",
		"--random-weights",
		"--indices", "0,2",
		"--output-dir", out,
	)
	require.NoError(t, err)

	for _, name := range []string{"saliency", "filter-visualization", "filter-activations", "lime"} {
		matches, err := filepath.Glob(filepath.Join(out, name+"-*.png"))
		require.NoError(t, err)
		assert.Len(t, matches, 1, name)
	}
}

func TestFiltersFlagsOverrideConfig(t *testing.T) {
	root, cfgPath := setup(t)

	// Layer 4 has 4 filters, so filter 9 is rejected.
	err := run(t, "filters",
		"--config", cfgPath,
		"--dataset", root,
		"--random-weights",
		"--indices", "1",
		"--filter", "9",
	)
	assert.Error(t, err)
}

func TestRejectsOutOfRangeIndices(t *testing.T) {
	root, cfgPath := setup(t)

	err := run(t, "saliency",
		"--config", cfgPath,
		"--dataset", root,
		"--random-weights",
		"--indices", "3",
	)
	assert.Error(t, err)
}

func TestMissingCheckpoint(t *testing.T) {
	root, cfgPath := setup(t)

	err := run(t, "saliency",
		"--config", cfgPath,
		"--dataset", root,
		"--checkpoint", filepath.Join(root, "missing.pth"),
	)
	assert.Error(t, err)
}
