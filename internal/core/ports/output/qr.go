package ports

// QREncoder renders a payload as a QR code image.
type QREncoder interface {
	EncodePNG(payload string) ([]byte, error)
}

// QRDecoder finds and reads a QR code in an encoded image (JPEG, PNG, GIF).
// It returns domain.ErrImageDecode when the bytes are not an image and
// domain.ErrQRNotFound when no code could be read.
type QRDecoder interface {
	Decode(data []byte) (string, error)
}
