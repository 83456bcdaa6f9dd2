package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"

	"qr-cipher-bot/internal/config"
	"qr-cipher-bot/internal/core/domain"
	ports "qr-cipher-bot/internal/core/ports/output"
)

const (
	defaultModulePixels = 8
	defaultBorder       = 2
)

type encoder struct {
	modulePixels int
	border       int
	level        qrcode.RecoveryLevel
}

// NewEncoder renders black-on-white PNG QR codes with a quiet zone of
// cfg.Border modules, each module cfg.ModulePixels wide.
func NewEncoder(cfg *config.QRConfig) ports.QREncoder {
	e := &encoder{
		modulePixels: cfg.ModulePixels,
		border:       cfg.Border,
		level:        qrcode.Medium,
	}
	if e.modulePixels <= 0 {
		e.modulePixels = defaultModulePixels
	}
	if e.border < 0 {
		e.border = defaultBorder
	}
	return e
}

func (e *encoder) EncodePNG(payload string) ([]byte, error) {
	img, err := e.render(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *encoder) render(payload string) (*image.Paletted, error) {
	if payload == "" {
		return nil, domain.ErrEmptyPayload
	}

	code, err := qrcode.New(payload, e.level)
	if err != nil {
		return nil, fmt.Errorf("build qr code: %w", err)
	}
	// go-qrcode always pads 4 modules; the border is drawn here instead.
	code.DisableBorder = true
	bitmap := code.Bitmap()

	modules := len(bitmap) + 2*e.border
	side := modules * e.modulePixels
	img := image.NewPaletted(image.Rect(0, 0, side, side), color.Palette{color.White, color.Black})

	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			x0 := (x + e.border) * e.modulePixels
			y0 := (y + e.border) * e.modulePixels
			for py := y0; py < y0+e.modulePixels; py++ {
				for px := x0; px < x0+e.modulePixels; px++ {
					img.SetColorIndex(px, py, 1)
				}
			}
		}
	}
	return img, nil
}
