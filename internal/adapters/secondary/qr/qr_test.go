package qr

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-cipher-bot/internal/config"
	"qr-cipher-bot/internal/core/domain"
)

const sampleToken = "gAAAAABmX2Jv0c3lP5qv9o8bTn3sX1cL6yQv0yR1t3Zr9e0mC2kqQ8wYp7Z4x0f3JqkY2sL7uV1n6a5b4c3d2e1f0gHiJkLmNoPqRsTuVwXyZ0123456789=="

func TestEncoder_Geometry(t *testing.T) {
	enc := NewEncoder(&config.QRConfig{ModulePixels: 8, Border: 2})

	data, err := enc.EncodePNG("hello")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	b := img.Bounds()
	assert.Equal(t, b.Dx(), b.Dy())
	require.Zero(t, b.Dx()%8)

	modules := b.Dx()/8 - 2*2
	assert.GreaterOrEqual(t, modules, 21)
	assert.Zero(t, (modules-21)%4, "qr symbols are 17+4v modules wide")

	// Quiet zone is white, the finder pattern starts right after it.
	assert.True(t, isWhite(img.At(0, 0)))
	assert.True(t, isWhite(img.At(15, 15)))
	assert.False(t, isWhite(img.At(16, 16)))
	assert.False(t, isWhite(img.At(23, 23)))
}

func TestEncoder_Defaults(t *testing.T) {
	e := NewEncoder(&config.QRConfig{ModulePixels: 0, Border: -1}).(*encoder)
	assert.Equal(t, defaultModulePixels, e.modulePixels)
	assert.Equal(t, defaultBorder, e.border)
}

func TestEncoder_EmptyPayload(t *testing.T) {
	enc := NewEncoder(&config.QRConfig{ModulePixels: 8, Border: 2})
	_, err := enc.EncodePNG("")
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)
}

func TestRoundTrip_PNG(t *testing.T) {
	enc := NewEncoder(&config.QRConfig{ModulePixels: 8, Border: 4})
	dec := NewDecoder(0)

	data, err := enc.EncodePNG(sampleToken)
	require.NoError(t, err)

	text, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, sampleToken, text)
}

func TestRoundTrip_JPEGOnCanvas(t *testing.T) {
	enc := NewEncoder(&config.QRConfig{ModulePixels: 8, Border: 2})
	dec := NewDecoder(0)

	data, err := enc.EncodePNG(sampleToken)
	require.NoError(t, err)
	code, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// Simulate a photo: the code sits off-centre on a larger light canvas
	// and goes through lossy compression.
	side := code.Bounds().Dx()
	canvas := image.NewRGBA(image.Rect(0, 0, side*2, side*2))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{R: 240, G: 240, B: 235, A: 255}), image.Point{}, draw.Src)
	draw.Draw(canvas, code.Bounds().Add(image.Pt(side/3, side/2)), code, image.Point{}, draw.Src)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}))

	text, err := dec.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sampleToken, text)
}

func TestDecoder_NotAnImage(t *testing.T) {
	dec := NewDecoder(0)
	_, err := dec.Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, domain.ErrImageDecode)
}

func TestDecoder_NoCode(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 120, 120))
	draw.Draw(blank, blank.Bounds(), image.White, image.Point{}, draw.Src)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))

	_, err := NewDecoder(0).Decode(buf.Bytes())
	assert.ErrorIs(t, err, domain.ErrQRNotFound)
}

func TestDecoder_TooLarge(t *testing.T) {
	_, err := NewDecoder(4).Decode([]byte("12345"))
	assert.ErrorIs(t, err, domain.ErrPhotoTooLarge)
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xf000 && g > 0xf000 && b > 0xf000
}
