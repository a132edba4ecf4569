// Package inference - onnxruntime classifier sessions.
//
// A Session runs an ONNX export of the classifier and exposes the same
// batch-of-images to probabilities function as the gorgonia model, so local
// explanations can sample thousands of perturbations on an optimized runtime.
package inference

import (
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/floats"

	"github.com/nvr-ai/go-explain/images"
)

// SessionArgs describes the exported classifier.
type SessionArgs struct {
	// ModelPath is the ONNX file.
	ModelPath string
	// LibraryPath is the onnxruntime shared library. Empty uses SharedLibPath.
	LibraryPath string
	// InputName and OutputName are the graph's tensor names.
	InputName  string
	OutputName string
	// BatchSize is the fixed batch dimension of the preallocated tensors.
	BatchSize int
	// Channels and Size give the (C, Size, Size) input image shape.
	Channels int
	Size     int
	// Classes is the width of the logits output.
	Classes int
}

// DefaultSessionArgs returns the names and shapes of the Food-11 export.
func DefaultSessionArgs(modelPath string) SessionArgs {
	return SessionArgs{
		ModelPath:  modelPath,
		InputName:  "input",
		OutputName: "output",
		BatchSize:  10,
		Channels:   3,
		Size:       128,
		Classes:    11,
	}
}

func (a SessionArgs) validate() error {
	if a.ModelPath == "" {
		return errors.New("model path is required")
	}
	if a.BatchSize <= 0 || a.Channels <= 0 || a.Size <= 0 || a.Classes <= 0 {
		return errors.Errorf("invalid tensor shape: batch=%d channels=%d size=%d classes=%d",
			a.BatchSize, a.Channels, a.Size, a.Classes)
	}
	return nil
}

// Session is an onnxruntime classifier with preallocated tensors.
type Session struct {
	args    SessionArgs
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	mu    sync.Mutex
	runs  int64
	total time.Duration
}

// NewSession loads the model and allocates its input and output tensors.
//
// Order of operations:
//  1. Library path check: the native runtime must be present.
//  2. Environment setup: once per process.
//  3. Tensor allocation: fixed (batch, C, H, W) input and (batch, classes) output.
//  4. Session creation: binds the tensors to the model.
//
// Arguments:
//   - args: The model file, tensor names and shapes.
//
// Returns:
//   - *Session: The session. Close releases it.
//   - error: An error if the library or model cannot be loaded.
func NewSession(args SessionArgs) (*Session, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(args.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "onnx model %s", args.ModelPath)
	}

	libPath := args.LibraryPath
	if libPath == "" {
		libPath = SharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initialize onnxruntime environment")
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(
		int64(args.BatchSize), int64(args.Channels), int64(args.Size), int64(args.Size)))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(args.BatchSize), int64(args.Classes)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.InputName},
		[]string{args.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create onnxruntime session")
	}

	log.Printf("✅ onnxruntime session ready: %s", args.ModelPath)
	return &Session{
		args:    args,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Predict returns softmax probabilities for pixel-major images in [0, 1].
//
// Images are fed through the fixed batch in chunks. A short final chunk is
// zero padded and the padded rows are discarded.
//
// Arguments:
//   - batch: Images as Size*Size*Channels float64 slices.
//
// Returns:
//   - [][]float64: One probability row per image.
//   - error: An error if an image has the wrong size or a run fails.
func (s *Session) Predict(batch [][]float64) ([][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]float64, 0, len(batch))
	for start := 0; start < len(batch); start += s.args.BatchSize {
		end := min(start+s.args.BatchSize, len(batch))
		chunk := batch[start:end]

		if err := fillInput(s.input.GetData(), chunk, s.args); err != nil {
			return nil, errors.Wrapf(err, "images %d-%d", start, end-1)
		}

		began := time.Now()
		if err := s.session.Run(); err != nil {
			return nil, errors.Wrap(err, "run onnxruntime session")
		}
		s.runs++
		s.total += time.Since(began)

		out = append(out, softmaxRows(s.output.GetData(), len(chunk), s.args.Classes)...)
	}
	return out, nil
}

// Metrics reports the number of runs and their mean duration.
func (s *Session) Metrics() (runs int64, mean time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runs == 0 {
		return 0, 0
	}
	return s.runs, s.total / time.Duration(s.runs)
}

// Close releases the session and its tensors.
func (s *Session) Close() error {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return errors.Wrap(err, "destroy onnxruntime session")
		}
	}
	return nil
}

// fillInput writes a chunk of HWC images into the CHW input buffer and
// zeroes the unused rows.
func fillInput(dst []float32, chunk [][]float64, args SessionArgs) error {
	stride := args.Channels * args.Size * args.Size
	if len(chunk) > args.BatchSize {
		return errors.Errorf("chunk of %d exceeds batch size %d", len(chunk), args.BatchSize)
	}
	for i, img := range chunk {
		if len(img) != stride {
			return errors.Errorf("image has %d values, want %d", len(img), stride)
		}
		copy(dst[i*stride:(i+1)*stride], images.HWCToCHW(img, args.Channels, args.Size, args.Size))
	}
	clear(dst[len(chunk)*stride:])
	return nil
}

// softmaxRows converts the first rows of a logits buffer to probabilities.
func softmaxRows(logits []float32, rows, classes int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		row := make([]float64, classes)
		for c := range row {
			row[c] = float64(logits[i*classes+c])
		}
		lse := floats.LogSumExp(row)
		for c := range row {
			row[c] = math.Exp(row[c] - lse)
		}
		out[i] = row
	}
	return out
}
