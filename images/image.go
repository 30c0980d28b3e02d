// Package images - Upload decoding, annotation and encoding.
package images

import (
	"image"
)

// Image is a decoded upload.
type Image struct {
	// The format the upload was encoded in.
	Format Format `json:"format"`
	// The width of the image after orientation is applied.
	Width int `json:"width"`
	// The height of the image after orientation is applied.
	Height int `json:"height"`
	// The decoded pixels.
	Pixels image.Image `json:"-"`
}

// Format represents supported image formats
type Format string

// Format constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG Format = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP Format = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG Format = "png"
)

// MimeType returns the media type of the format.
func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	case FormatPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Extensions lists the file extensions accepted for upload.
var Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}
