package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNewLetterbox(t *testing.T) {
	tests := []struct {
		name       string
		w, h, size int
		scale      float32
		padX, padY float32
	}{
		{name: "square", w: 640, h: 640, size: 640, scale: 1, padX: 0, padY: 0},
		{name: "landscape", w: 1280, h: 640, size: 640, scale: 0.5, padX: 0, padY: 160},
		{name: "portrait", w: 320, h: 640, size: 640, scale: 1, padX: 160, padY: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lb := NewLetterbox(tc.w, tc.h, tc.size)
			assert.InDelta(t, tc.scale, lb.Scale, 1e-6)
			assert.InDelta(t, tc.padX, lb.PadX, 1e-6)
			assert.InDelta(t, tc.padY, lb.PadY, 1e-6)
		})
	}
}

func TestLetterboxUnmap(t *testing.T) {
	lb := NewLetterbox(1280, 640, 640)
	x, y := lb.Unmap(320, 320)
	assert.InDelta(t, 640, x, 1e-3)
	assert.InDelta(t, 320, y, 1e-3)
}

func TestPrepareInput(t *testing.T) {
	const size = 32
	dst := make([]float32, 3*size*size)
	img := solidImage(64, 32, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	lb, err := PrepareInput(img, size, dst)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, lb.Scale, 1e-6)
	assert.InDelta(t, 8, lb.PadY, 1e-6)

	channel := size * size
	// Padding rows keep the gray fill.
	assert.InDelta(t, PadValue, dst[0], 1e-6)
	assert.InDelta(t, PadValue, dst[channel+0], 1e-6)
	// The centre of the image carries the red pixels.
	centre := 16*size + 16
	assert.InDelta(t, 1.0, dst[centre], 0.02)
	assert.InDelta(t, 0.0, dst[channel+centre], 0.02)
	assert.InDelta(t, 0.0, dst[2*channel+centre], 0.02)
}

func TestPrepareInputErrors(t *testing.T) {
	_, err := PrepareInput(solidImage(10, 10, color.RGBA{A: 255}), 32, make([]float32, 10))
	assert.Error(t, err)

	_, err = PrepareInput(image.NewRGBA(image.Rect(0, 0, 0, 0)), 32, make([]float32, 3*32*32))
	assert.Error(t, err)
}
