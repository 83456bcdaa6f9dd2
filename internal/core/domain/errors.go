package domain

import "errors"

var (
	ErrInvalidUpdate    = errors.New("invalid Telegram update")
	ErrBadSecretToken   = errors.New("bad secret token")
	ErrInvalidToken     = errors.New("cipher token is invalid or was signed with another key")
	ErrInvalidPlaintext = errors.New("decrypted text is not valid UTF-8")
	ErrQRNotFound       = errors.New("no QR code found in image")
	ErrImageDecode      = errors.New("could not decode image bytes")
	ErrPhotoTooLarge    = errors.New("photo exceeds size limit")
	ErrEmptyPayload     = errors.New("payload is empty")
	ErrTelegramAPI      = errors.New("telegram api request failed")
	ErrUpdateLogUnavail = errors.New("update log unavailable")
)
