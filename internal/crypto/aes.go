// Package crypto seals stored values with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const prefix = "aes-gcm:"

// ErrOpen is returned when a sealed value cannot be decrypted with the key.
var ErrOpen = errors.New("crypto: decrypt failed: invalid key or corrupted data")

// Sealer encrypts and decrypts values with one AES-256-GCM key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer parses key (see DeriveKey) and prepares the cipher.
func NewSealer(key string) (*Sealer, error) {
	keyBytes, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns "aes-gcm:" + base64(nonce + ciphertext + tag).
// The empty string is returned unchanged.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix were written before
// encryption was enabled and are returned as-is.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", ErrOpen
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", ErrOpen
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrOpen
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the "aes-gcm:" prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, prefix)
}

// DeriveKey converts the input string to a 32-byte AES key.
// Accepts: hex-encoded (64 chars), base64-encoded (44 chars), or raw 32 bytes.
func DeriveKey(input string) ([]byte, error) {
	if len(input) == 64 {
		if b, err := hex.DecodeString(input); err == nil {
			return b, nil
		}
	}
	if len(input) == 44 && strings.HasSuffix(input, "=") {
		if b, err := base64.StdEncoding.DecodeString(input); err == nil && len(b) == 32 {
			return b, nil
		}
	}
	if len(input) == 32 {
		return []byte(input), nil
	}
	return nil, errors.New("crypto: key must be 32 bytes (hex-encoded 64 chars, base64 44 chars, or raw 32 bytes)")
}
