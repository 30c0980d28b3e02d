package images

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	return img
}

func encoded(t *testing.T, format Format, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	case FormatPNG:
		require.NoError(t, png.Encode(&buf, img))
	case FormatWebP:
		require.NoError(t, webp.Encode(&buf, img, &webp.Options{Lossless: true}))
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	for _, format := range []Format{FormatJPEG, FormatPNG, FormatWebP} {
		t.Run(string(format), func(t *testing.T) {
			img, err := Decode(encoded(t, format, getTestImage(120, 80)))
			require.NoError(t, err)
			assert.Equal(t, format, img.Format)
			assert.Equal(t, 120, img.Width)
			assert.Equal(t, 80, img.Height)
			assert.Equal(t, image.Rect(0, 0, 120, 80), img.Pixels.Bounds())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Decode([]byte("GIF89a......"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	// A valid signature followed by garbage is a decode failure, not an
	// unsupported format.
	_, err = Decode([]byte("\x89PNG\r\n\x1a\nnot really a png"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedFormat))
}

// pngHeader returns a PNG holding only an IHDR chunk that declares a w×h
// grayscale image.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter and interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeConfig(t *testing.T) {
	for _, format := range []Format{FormatJPEG, FormatPNG, FormatWebP} {
		t.Run(string(format), func(t *testing.T) {
			got, cfg, err := DecodeConfig(encoded(t, format, getTestImage(30, 20)))
			require.NoError(t, err)
			assert.Equal(t, format, got)
			assert.Equal(t, 30, cfg.Width)
			assert.Equal(t, 20, cfg.Height)
		})
	}

	_, cfg, err := DecodeConfig(pngHeader(20000, 20000))
	require.NoError(t, err)
	assert.Equal(t, 20000, cfg.Width)
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	data := pngHeader(20000, 20000)
	require.Less(t, len(data), 64)

	_, err := Decode(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge))
	assert.Contains(t, err.Error(), "20000x20000")
}

func TestDecodeLimit(t *testing.T) {
	data := encoded(t, FormatPNG, getTestImage(10, 10))

	_, err := DecodeLimit(data, 50)
	assert.True(t, errors.Is(err, ErrTooLarge))

	img, err := DecodeLimit(data, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Width)

	_, err = DecodeLimit(data, 0)
	assert.NoError(t, err)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "))
	require.NoError(t, err)
	assert.Equal(t, FormatWebP, f)

	_, err = DetectFormat([]byte("RIFF\x00\x00\x00\x00WAVE"))
	assert.Error(t, err)

	assert.Equal(t, "image/webp", FormatWebP.MimeType())
	assert.Equal(t, "image/jpeg", FormatJPEG.MimeType())
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaf.png")
	require.NoError(t, os.WriteFile(path, encoded(t, FormatPNG, getTestImage(10, 10)), 0o600))

	img, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, img.Format)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	src := getTestImage(400, 200)

	assert.Same(t, src, Fit(src, 0))
	assert.Same(t, src, Fit(src, 400))

	fitted := Fit(src, 100)
	assert.Equal(t, 100, fitted.Bounds().Dx())
	assert.Equal(t, 50, fitted.Bounds().Dy())
}

func TestAnnotate(t *testing.T) {
	src := getTestImage(200, 200)
	boxes := []inference.BoundingBox{
		{Label: "Corn rust leaf", ClassID: 2, Confidence: 0.87, X1: 20, Y1: 40, X2: 120, Y2: 150},
	}

	out := Annotate(src, boxes)
	require.NotNil(t, out)
	assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())

	// The box edge takes the class color; the source is left untouched.
	want := ClassColor(2)
	got := color.RGBAModel.Convert(out.At(20, 100)).(color.RGBA)
	assert.InDelta(t, want.R, got.R, 8)
	assert.InDelta(t, want.G, got.G, 8)
	assert.InDelta(t, want.B, got.B, 8)
	assert.Equal(t, color.RGBA{R: 40, G: 160, B: 60, A: 255}, src.At(20, 100))

	assert.Same(t, src, Annotate(src, nil))
}

func TestClassColor(t *testing.T) {
	assert.Equal(t, ClassColor(3), ClassColor(3))
	assert.NotEqual(t, ClassColor(0), ClassColor(1))
	assert.Equal(t, uint8(255), ClassColor(7).A)

	assert.Equal(t, color.RGBA{A: 255}, LabelTextColor(color.RGBA{R: 255, G: 255, B: 200, A: 255}))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, LabelTextColor(color.RGBA{R: 20, G: 20, B: 90, A: 255}))
}

func TestDataURI(t *testing.T) {
	uri, err := DataURI(getTestImage(4, 4))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
