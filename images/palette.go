package images

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// goldenAngle spreads consecutive class hues around the color wheel.
const goldenAngle = 137.50776405003785

// ClassColor returns a stable, saturated color for a class ID.
func ClassColor(classID int) color.RGBA {
	hue := math.Mod(float64(classID)*goldenAngle, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, 0.8, 0.95).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// LabelTextColor picks black or white text, whichever reads better on bg.
func LabelTextColor(bg color.RGBA) color.RGBA {
	c, _ := colorful.MakeColor(bg)
	_, _, l := c.Hcl()
	if l > 0.6 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}
