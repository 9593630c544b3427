// Package store defines the durable key-value storage used for the device
// identity and the current pairing token. Drivers live in subpackages.
package store

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyDeviceID  = "deviceId"
	KeyPairToken = "pairtoken"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// KV is a small durable key-value store. Values survive process restarts.
// Implementations must be safe for concurrent use; concurrent writers to the
// same key are last-write-wins.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases driver resources.
	Close() error
}
