package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const gcmNonceSize = 12

// Cipher encrypts individual column values with AES-256-GCM. The wire form is
// base64(nonce || ciphertext) so rows stay portable as plain text columns.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64-encoded 32-byte key.
func NewCipher(keyB64 string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("store: aes key must be valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store: aes key must decode to exactly 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("store: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("store: init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals one value under a fresh random nonce.
func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("store: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values sealed under a different key fail
// authentication and return an error.
func (c *Cipher) Decrypt(cipherB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return "", fmt.Errorf("store: ciphertext must be valid base64: %w", err)
	}
	if len(raw) < gcmNonceSize {
		return "", fmt.Errorf("store: ciphertext too short")
	}
	plain, err := c.aead.Open(nil, raw[:gcmNonceSize], raw[gcmNonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("store: decrypt: %w", err)
	}
	return string(plain), nil
}
