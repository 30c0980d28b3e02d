//go:build !gocv

package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/leafscan/inference"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func drawBoxes(img image.Image, boxes []inference.BoundingBox) image.Image {
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()
	stroke := lineWidth(bounds)
	face := basicfont.Face7x13

	for _, b := range boxes {
		fg := ClassColor(b.ClassID)
		r := b.ToRect().Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}

		fill := image.NewUniform(fg)
		for i := 0; i < stroke; i++ {
			edge := r.Inset(i)
			if edge.Empty() {
				break
			}
			draw.Draw(canvas, image.Rect(edge.Min.X, edge.Min.Y, edge.Max.X, edge.Min.Y+1), fill, image.Point{}, draw.Src)
			draw.Draw(canvas, image.Rect(edge.Min.X, edge.Max.Y-1, edge.Max.X, edge.Max.Y), fill, image.Point{}, draw.Src)
			draw.Draw(canvas, image.Rect(edge.Min.X, edge.Min.Y, edge.Min.X+1, edge.Max.Y), fill, image.Point{}, draw.Src)
			draw.Draw(canvas, image.Rect(edge.Max.X-1, edge.Min.Y, edge.Max.X, edge.Max.Y), fill, image.Point{}, draw.Src)
		}

		drawCaption(canvas, face, r, boxLabel(b), fg)
	}
	return canvas
}

// drawCaption draws text on a filled tab above r, or inside r when r touches
// the top edge of the image.
func drawCaption(dst *image.NRGBA, face font.Face, r image.Rectangle, text string, bg color.RGBA) {
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil() + 2
	width := font.MeasureString(face, text).Ceil() + 4

	top := r.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	tab := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, tab, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(LabelTextColor(bg)),
		Face: face,
		Dot:  fixed.P(r.Min.X+2, top+1+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
