// Package keyring implements store.KV on the OS keychain via go-keyring.
// Suited to the pairing token, which should not sit in a plain file.
package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

// provider abstracts go-keyring calls for testing.
type provider interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

// KV stores each key as a keychain item under one service name.
type KV struct {
	service  string
	provider provider
}

// New creates a keychain-backed store. service defaults to "mirrorpair".
func New(service string) *KV {
	if service == "" {
		service = "mirrorpair"
	}
	return &KV{service: service, provider: osKeyring{}}
}

func (k *KV) Get(_ context.Context, key string) (string, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}
	v, err := k.provider.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain get %s: %w", key, err)
	}
	return v, nil
}

func (k *KV) Set(_ context.Context, key, value string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := k.provider.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(_ context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	err := k.provider.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keychain delete %s: %w", key, err)
	}
	return nil
}

func (k *KV) Close() error { return nil }
