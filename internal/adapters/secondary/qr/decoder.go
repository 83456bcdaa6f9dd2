package qr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	multiqrcode "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"

	"qr-cipher-bot/internal/core/domain"
	ports "qr-cipher-bot/internal/core/ports/output"
)

type decoder struct {
	maxBytes int64
	hints    map[gozxing.DecodeHintType]interface{}
}

// NewDecoder reads QR codes from JPEG, PNG and GIF images of at most
// maxBytes (0 disables the limit).
func NewDecoder(maxBytes int64) ports.QRDecoder {
	return &decoder{
		maxBytes: maxBytes,
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (d *decoder) Decode(data []byte) (string, error) {
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return "", domain.ErrPhotoTooLarge
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}
	return d.DecodeImage(img)
}

// DecodeImage tries a single-code read first and falls back to scanning
// for several codes, returning the first non-empty text.
func (d *decoder) DecodeImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}

	if res, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints); err == nil && res.GetText() != "" {
		return res.GetText(), nil
	}

	results, err := multiqrcode.NewQRCodeMultiReader().DecodeMultiple(bmp, d.hints)
	if err != nil {
		return "", domain.ErrQRNotFound
	}
	for _, r := range results {
		if r != nil && r.GetText() != "" {
			return r.GetText(), nil
		}
	}
	return "", domain.ErrQRNotFound
}
