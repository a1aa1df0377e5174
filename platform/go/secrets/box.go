// Package secrets seals OAuth tokens and client secrets for at-rest storage.
// AES-256-GCM with a random nonce prepended to the ciphertext; output is
// base64 so sealed values can live in text columns.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

var (
	// ErrInvalidKey indicates the supplied key is not KeySize bytes.
	ErrInvalidKey = errors.New("secrets: key must be 32 bytes")
	// ErrCiphertext indicates a sealed value that cannot be opened (truncated, corrupted, or wrong key).
	ErrCiphertext = errors.New("secrets: cannot open sealed value")
)

// Box encrypts and decrypts short secrets with a fixed key.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box from a raw 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// NewBoxFromBase64 builds a Box from a base64-encoded 32-byte key, the form the key takes in configuration.
func NewBoxFromBase64(encoded string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	return NewBox(key)
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrCiphertext
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrCiphertext
	}
	plaintext, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plaintext), nil
}
