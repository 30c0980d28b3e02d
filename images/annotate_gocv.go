//go:build gocv

package images

import (
	"image"
	"image/color"

	"github.com/nvr-ai/leafscan/inference"
	"gocv.io/x/gocv"
)

func drawBoxes(img image.Image, boxes []inference.BoundingBox) image.Image {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil || mat.Empty() {
		return img
	}
	defer mat.Close()

	bounds := img.Bounds()
	stroke := lineWidth(bounds)
	scale := 0.4 + float64(stroke)*0.15

	for _, b := range boxes {
		c := ClassColor(b.ClassID)
		// Mats are BGR.
		bgr := color.RGBA{R: c.B, G: c.G, B: c.R, A: 255}
		r := b.ToRect()
		gocv.Rectangle(&mat, r, bgr, stroke)

		text := boxLabel(b)
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, 1)
		top := r.Min.Y - size.Y - 6
		if top < 0 {
			top = r.Min.Y
		}
		tab := image.Rect(r.Min.X, top, r.Min.X+size.X+4, top+size.Y+6)
		gocv.Rectangle(&mat, tab, bgr, -1)

		tc := LabelTextColor(c)
		gocv.PutText(&mat, text, image.Pt(r.Min.X+2, top+size.Y+3), gocv.FontHersheySimplex, scale,
			color.RGBA{R: tc.B, G: tc.G, B: tc.R, A: 255}, 1)
	}

	out, err := mat.ToImage()
	if err != nil {
		return img
	}
	return out
}
