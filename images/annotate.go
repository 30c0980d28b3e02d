package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/leafscan/inference"
)

// Annotate returns a copy of img with each detection drawn as a labelled box
// in its class color. img is not modified.
func Annotate(img image.Image, boxes []inference.BoundingBox) image.Image {
	if len(boxes) == 0 {
		return img
	}
	return drawBoxes(img, boxes)
}

// boxLabel is the caption drawn above a box, e.g. "Corn rust leaf 0.87".
func boxLabel(b inference.BoundingBox) string {
	return fmt.Sprintf("%s %.2f", b.Label, b.Confidence)
}

// lineWidth scales the box stroke with the image size.
func lineWidth(bounds image.Rectangle) int {
	side := math32.Max(float32(bounds.Dx()), float32(bounds.Dy()))
	return max(int(math32.Round(side*0.003)), 2)
}
