package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens cookie/storage-state payloads with an authenticated
// symmetric cipher so the store only ever persists ciphertext.
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewCipher builds a Cipher from a raw 32-byte key. ErrKeyMissing is returned
// if key is empty; ErrKeyLength if it isn't exactly 32 bytes.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrKeyMissing
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeyLength
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64-encoded (nonce || ciphertext)
// string, safe to persist as a TEXT column.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. ErrDecryptFailed wraps any authentication or framing
// failure — callers surface it as identity_key_invalid, never a raw error.
func (c *Cipher) Open(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return nil, ErrDecryptFailed
	}
	nonce, ct := raw[:n], raw[n:]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
