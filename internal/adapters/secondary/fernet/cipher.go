package fernet

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fernet/fernet-go"

	"qr-cipher-bot/internal/config"
	"qr-cipher-bot/internal/core/domain"
	ports "qr-cipher-bot/internal/core/ports/output"
)

type fernetCipher struct {
	keys []*fernet.Key
	ttl  time.Duration
}

// NewCipher builds a Fernet cipher. Tokens are interoperable with other
// Fernet implementations using the same key.
func NewCipher(cfg *config.CipherConfig) (ports.Cipher, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("at least one fernet key is required")
	}
	keys, err := fernet.DecodeKeys(cfg.Keys...)
	if err != nil {
		return nil, fmt.Errorf("decode fernet keys: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		// fernet-go skips the timestamp check for negative ttls.
		ttl = -1
	}
	return &fernetCipher{keys: keys, ttl: ttl}, nil
}

func (c *fernetCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", domain.ErrEmptyPayload
	}
	tok, err := fernet.EncryptAndSign([]byte(plain), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("fernet encrypt: %w", err)
	}
	return string(tok), nil
}

func (c *fernetCipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), c.ttl, c.keys)
	if msg == nil {
		return "", domain.ErrInvalidToken
	}
	if !utf8.Valid(msg) {
		return "", domain.ErrInvalidPlaintext
	}
	return string(msg), nil
}
