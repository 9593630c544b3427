package store

import (
	"context"
	"fmt"
)

// Cipher seals values before they reach a driver.
type Cipher interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// SealedKV encrypts values on Set and decrypts them on Get. Keys are stored
// in the clear so drivers can still index them.
type SealedKV struct {
	kv     KV
	cipher Cipher
}

// NewSealed wraps kv. Values written before sealing was enabled are read
// back unchanged, as long as the cipher passes them through.
func NewSealed(kv KV, c Cipher) *SealedKV {
	return &SealedKV{kv: kv, cipher: c}
}

func (s *SealedKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	plain, err := s.cipher.Open(v)
	if err != nil {
		return "", fmt.Errorf("store: open %s: %w", key, err)
	}
	return plain, nil
}

func (s *SealedKV) Set(ctx context.Context, key, value string) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return fmt.Errorf("store: seal %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, sealed)
}

func (s *SealedKV) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

func (s *SealedKV) Close() error {
	return s.kv.Close()
}
