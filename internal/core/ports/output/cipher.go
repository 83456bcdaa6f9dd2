package ports

// Cipher turns text into an authenticated token and back.
type Cipher interface {
	Encrypt(plain string) (string, error)
	// Decrypt returns domain.ErrInvalidToken when the token fails
	// verification.
	Decrypt(token string) (string, error)
}
