// Package images - Image decoding and float tensor conversion utilities.
package images

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg" // register jpeg decoder
	_ "image/png"  // register png decoder
	"os"
	"path/filepath"
	"strings"

	_ "github.com/chai2010/webp" // register webp decoder
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// FormatFromPath guesses the image format from a file extension.
//
// Arguments:
//   - path: The file path.
//
// Returns:
//   - ImageFormat: The format, or an empty string for unknown extensions.
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".webp":
		return FormatWebP
	default:
		return ""
	}
}

// Read loads and decodes the image at path.
//
// Arguments:
//   - path: The file to decode.
//
// Returns:
//   - *Image: The encoded bytes with their format and dimensions.
//   - image.Image: The decoded image.
//   - error: An error if the file cannot be read or decoded.
//
// @example
// _, img, err := images.Read("food-11/training/0_12.jpg")
func Read(path string) (*Image, image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read image %s", path)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decode image %s", path)
	}

	bounds := decoded.Bounds()
	return &Image{
		Format: ImageFormat(format),
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, decoded, nil
}

// ToCHW converts an image to a channel-major float32 slice in [0, 1].
//
// This is the ToTensor step of the dataset transform: RGB planes are stored
// one after another, each row-major.
//
// Arguments:
//   - img: The image to convert.
//
// Returns:
//   - []float32: 3*H*W values.
func ToCHW(img image.Image) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*w + x
			out[i] = float32(r) / 65535
			out[plane+i] = float32(g) / 65535
			out[2*plane+i] = float32(b) / 65535
		}
	}
	return out
}

// FromCHW renders a channel-major float slice as an RGBA image.
//
// Values are clamped to [0, 1]. One channel produces a gray image, three
// channels produce RGB.
//
// Arguments:
//   - data: c*h*w values.
//   - c: Number of channels (1 or 3).
//   - h: Height.
//   - w: Width.
//
// Returns:
//   - *image.RGBA: The rendered image.
func FromCHW(data []float32, c, h, w int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			r := data[i]
			g, b := r, r
			if c >= 3 {
				g = data[plane+i]
				b = data[2*plane+i]
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: toByte(float64(r)),
				G: toByte(float64(g)),
				B: toByte(float64(b)),
				A: 255,
			})
		}
	}
	return dst
}

// CHWToHWC transposes a channel-major slice into pixel-major float64 layout.
func CHWToHWC(data []float32, c, h, w int) []float64 {
	out := make([]float64, len(data))
	plane := h * w
	for ch := 0; ch < c; ch++ {
		for i := 0; i < plane; i++ {
			out[i*c+ch] = float64(data[ch*plane+i])
		}
	}
	return out
}

// HWCToCHW transposes a pixel-major slice into channel-major float32 layout.
func HWCToCHW(data []float64, c, h, w int) []float32 {
	out := make([]float32, len(data))
	plane := h * w
	for i := 0; i < plane; i++ {
		for ch := 0; ch < c; ch++ {
			out[ch*plane+i] = float32(data[i*c+ch])
		}
	}
	return out
}

// FromHWC renders a pixel-major three channel float slice as an RGBA image.
func FromHWC(data []float64, h, w int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			dst.SetRGBA(x, y, color.RGBA{
				R: toByte(data[i]),
				G: toByte(data[i+1]),
				B: toByte(data[i+2]),
				A: 255,
			})
		}
	}
	return dst
}

func toByte(v float64) uint8 {
	return uint8(Clamp(v, 0, 1)*255 + 0.5)
}
