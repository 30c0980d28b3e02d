package inference

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PadValue is the gray level YOLO exports are trained with for letterbox
// padding (114/255).
const PadValue = float32(114) / 255.0

// Letterbox records how an image was fitted into the square model input so
// that detections can be mapped back to original image coordinates.
type Letterbox struct {
	// Size is the side of the square model input.
	Size int
	// Scale is the factor applied to the original image.
	Scale float32
	// PadX, PadY are the left and top padding in model input pixels.
	PadX, PadY float32
	// Width, Height are the original image dimensions.
	Width, Height int
}

// NewLetterbox computes the letterbox geometry for fitting a width x height
// image into a size x size input while preserving aspect ratio.
func NewLetterbox(width, height, size int) Letterbox {
	scale := math32.Min(float32(size)/float32(width), float32(size)/float32(height))
	newW := math32.Round(float32(width) * scale)
	newH := math32.Round(float32(height) * scale)
	return Letterbox{
		Size:   size,
		Scale:  scale,
		PadX:   (float32(size) - newW) / 2,
		PadY:   (float32(size) - newH) / 2,
		Width:  width,
		Height: height,
	}
}

// Unmap converts a point in model input space into original image space.
func (l Letterbox) Unmap(x, y float32) (float32, float32) {
	return (x - l.PadX) / l.Scale, (y - l.PadY) / l.Scale
}

// PrepareInput letterboxes img into the square model input and writes it to
// dst in planar RGB (CHW) order with values normalized to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - size: The side of the square model input.
//   - dst: The destination tensor data, at least 3*size*size floats.
//
// Returns:
//   - Letterbox: The geometry needed to map detections back.
//   - error: An error if the input preparation fails.
func PrepareInput(img image.Image, size int, dst []float32) (Letterbox, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return Letterbox{}, errors.New("image has no pixels")
	}
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return Letterbox{}, errors.Errorf("Destination tensor only holds %d floats, needs "+
			"%d (make sure it's the right shape!)", len(dst), channelSize*3)
	}

	lb := NewLetterbox(bounds.Dx(), bounds.Dy(), size)
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]
	for i := range channelSize {
		red[i], green[i], blue[i] = PadValue, PadValue, PadValue
	}

	newW := max(uint(math32.Round(float32(bounds.Dx())*lb.Scale)), 1)
	newH := max(uint(math32.Round(float32(bounds.Dy())*lb.Scale)), 1)
	resized := resize.Resize(newW, newH, img, resize.Bilinear)
	rb := resized.Bounds()

	offX, offY := int(math32.Floor(lb.PadX)), int(math32.Floor(lb.PadY))
	for y := 0; y < rb.Dy(); y++ {
		row := (y + offY) * size
		for x := 0; x < rb.Dx(); x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			i := row + x + offX
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
		}
	}
	return lb, nil
}
