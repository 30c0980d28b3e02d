package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// DefaultMaxPixels is the pixel budget Decode enforces.
const DefaultMaxPixels = 50_000_000

var (
	// ErrUnsupportedFormat is returned for data that is not JPEG, PNG or WebP.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge is returned when the declared dimensions exceed the pixel
	// budget. It is detected from the header, before any pixels are decoded.
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// DetectFormat identifies the encoding of data from its leading bytes.
func DetectFormat(data []byte) (Format, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG, nil
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, nil
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// DecodeConfig reads the format and dimensions from the image header without
// decoding pixel data.
func DecodeConfig(data []byte) (Format, image.Config, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return "", image.Config{}, err
	}

	var cfg image.Config
	r := bytes.NewReader(data)
	switch format {
	case FormatWebP:
		cfg, err = webp.DecodeConfig(r)
	case FormatPNG:
		cfg, err = png.DecodeConfig(r)
	default:
		cfg, err = jpeg.DecodeConfig(r)
	}
	if err != nil {
		return "", image.Config{}, errors.Wrapf(err, "decode %s header", format)
	}
	return format, cfg, nil
}

// Decode decodes an uploaded image within DefaultMaxPixels.
func Decode(data []byte) (*Image, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit decodes an uploaded image. JPEG EXIF orientation is applied so
// that detections line up with the picture the user sees.
//
// Arguments:
//   - data: The encoded image.
//   - maxPixels: Largest width*height accepted; non-positive disables the check.
//
// Returns:
//   - *Image: The decoded image.
//   - error: ErrUnsupportedFormat, ErrTooLarge, or a wrapped decoder error for
//     corrupt data.
func DecodeLimit(data []byte, maxPixels int) (*Image, error) {
	format, cfg, err := DecodeConfig(data)
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("decode %s: image has no pixels", format)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, errors.Wrapf(ErrTooLarge, "%dx%d %s, limit %d pixels", cfg.Width, cfg.Height, format, maxPixels)
	}

	var img image.Image
	switch format {
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(format == FormatJPEG))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", format)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, errors.Errorf("decode %s: image has no pixels", format)
	}
	return &Image{Format: format, Width: b.Dx(), Height: b.Dy(), Pixels: img}, nil
}

// DecodeFile reads and decodes an image file.
func DecodeFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return img, nil
}

// Fit scales img down so that neither side exceeds maxSide, preserving the
// aspect ratio. Smaller images and a non-positive maxSide leave img unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}
