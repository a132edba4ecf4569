package dataset

import (
	"image"
	"math/rand"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-explain/images"
)

// Mode selects the transform applied to every decoded image.
type Mode string

const (
	// ModeEval resizes and converts to a tensor.
	ModeEval Mode = "eval"
	// ModeTrain additionally flips and rotates at random.
	ModeTrain Mode = "train"
)

const (
	// DefaultSize is the side length images are resized to.
	DefaultSize = 128
	// MaxRotation is the largest augmentation rotation in degrees.
	MaxRotation = 15.0
)

// Batch is a stack of transformed images with their labels.
type Batch struct {
	// Images has shape (N, 3, Size, Size).
	Images *tensor.Dense
	// Labels holds one class per image.
	Labels []int
	// Indices are the dataset positions the batch was built from.
	Indices []int
}

// Len returns the number of images in the batch.
func (b *Batch) Len() int {
	return len(b.Labels)
}

// Sample returns a copy of image i as a channel-major slice.
func (b *Batch) Sample(i int) []float32 {
	shape := b.Images.Shape()
	stride := shape[1] * shape[2] * shape[3]
	data := b.Images.Data().([]float32)
	return append([]float32(nil), data[i*stride:(i+1)*stride]...)
}

// Dataset gives random access to transformed images.
type Dataset struct {
	records []Record
	mode    Mode
	size    int
	rng     *rand.Rand
}

// Option customises a Dataset.
type Option func(*Dataset)

// WithSize overrides the resize target.
func WithSize(size int) Option {
	return func(d *Dataset) {
		d.size = size
	}
}

// WithSeed seeds the augmentation random source.
func WithSeed(seed int64) Option {
	return func(d *Dataset) {
		d.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a dataset over records.
//
// Arguments:
//   - records: Listing produced by PathsLabels.
//   - mode: ModeTrain or ModeEval.
//   - opts: Optional size and seed overrides.
//
// Returns:
//   - *Dataset: The dataset.
func New(records []Record, mode Mode, opts ...Option) *Dataset {
	d := &Dataset{
		records: records,
		mode:    mode,
		size:    DefaultSize,
		rng:     rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Size returns the side length of transformed images.
func (d *Dataset) Size() int {
	return d.size
}

// Record returns the record at index i.
func (d *Dataset) Record(i int) Record {
	return d.records[i]
}

// Item decodes and transforms the image at index i.
//
// Arguments:
//   - i: Dataset index.
//
// Returns:
//   - *tensor.Dense: A (3, Size, Size) float32 tensor in [0, 1].
//   - int: The label.
//   - error: An error if the index is out of range or decoding fails.
func (d *Dataset) Item(i int) (*tensor.Dense, int, error) {
	data, label, err := d.item(i)
	if err != nil {
		return nil, 0, err
	}
	return tensor.New(
		tensor.WithShape(3, d.size, d.size),
		tensor.WithBacking(data),
	), label, nil
}

func (d *Dataset) item(i int) ([]float32, int, error) {
	if i < 0 || i >= len(d.records) {
		return nil, 0, errors.Errorf("index %d out of range [0, %d)", i, len(d.records))
	}
	record := d.records[i]

	_, img, err := images.Read(record.Path)
	if err != nil {
		return nil, 0, err
	}

	img, err = d.transform(img)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "transform %s", record.Path)
	}
	return images.ToCHW(img), record.Label, nil
}

// Batch stacks the items at indices, in order.
//
// Arguments:
//   - indices: Dataset indices to materialise.
//
// Returns:
//   - *Batch: Images of shape (len(indices), 3, Size, Size) and their labels.
//   - error: An error if any item fails to load.
//
// @example
// batch, err := ds.Batch([]int{83, 4218, 4707, 8598})
func (d *Dataset) Batch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, errors.New("batch needs at least one index")
	}

	stride := 3 * d.size * d.size
	backing := make([]float32, 0, len(indices)*stride)
	labels := make([]int, 0, len(indices))
	for _, index := range indices {
		data, label, err := d.item(index)
		if err != nil {
			return nil, err
		}
		backing = append(backing, data...)
		labels = append(labels, label)
	}

	return &Batch{
		Images: tensor.New(
			tensor.WithShape(len(indices), 3, d.size, d.size),
			tensor.WithBacking(backing),
		),
		Labels:  labels,
		Indices: append([]int(nil), indices...),
	}, nil
}

func (d *Dataset) transform(img image.Image) (image.Image, error) {
	img = resize.Resize(uint(d.size), uint(d.size), img, resize.Bilinear)
	if d.mode != ModeTrain {
		return img, nil
	}

	if d.rng.Float64() < 0.5 {
		flipped, err := FlipHorizontal(img)
		if err != nil {
			return nil, err
		}
		img = flipped
	}
	angle := (d.rng.Float64()*2 - 1) * MaxRotation
	return Rotate(img, angle)
}

// FlipHorizontal mirrors an image left to right.
//
// Arguments:
//   - img: The image to mirror.
//
// Returns:
//   - image.Image: The mirrored image.
//   - error: An error if the OpenCV conversion fails.
func FlipHorizontal(img image.Image) (image.Image, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "image to mat")
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Flip(src, &dst, 1)

	out, err := dst.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "mat to image")
	}
	return out, nil
}

// Rotate turns an image counter-clockwise around its center by angle degrees.
//
// The output keeps the input size; uncovered corners are filled with black.
//
// Arguments:
//   - img: The image to rotate.
//   - angle: Rotation in degrees.
//
// Returns:
//   - image.Image: The rotated image.
//   - error: An error if the OpenCV conversion fails.
func Rotate(img image.Image, angle float64) (image.Image, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "image to mat")
	}
	defer src.Close()

	size := image.Pt(src.Cols(), src.Rows())
	rotation := gocv.GetRotationMatrix2D(image.Pt(size.X/2, size.Y/2), angle, 1.0)
	defer rotation.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpAffine(src, &dst, rotation, size)

	out, err := dst.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "mat to image")
	}
	return out, nil
}
