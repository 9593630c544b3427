// Package device manages the durable identifier of this installation.
package device

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

// GetOrCreateID returns the persisted device id, generating and persisting a
// random UUID on first use. Persistence is best-effort: if the write fails the
// fresh id is still returned and used for the current run.
func GetOrCreateID(ctx context.Context, kv store.KV) string {
	id, err := kv.Get(ctx, store.KeyDeviceID)
	if err == nil && id != "" {
		return id
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("device: read id failed, generating a new one", "error", err)
	}

	id = uuid.NewString()
	if err := kv.Set(ctx, store.KeyDeviceID, id); err != nil {
		slog.Warn("device: persist id failed, id is valid for this run only", "device_id", id, "error", err)
		return id
	}
	slog.Info("device id created", "device_id", id)
	return id
}

// Reset forgets the persisted id so the next GetOrCreateID generates a new one.
func Reset(ctx context.Context, kv store.KV) error {
	return kv.Delete(ctx, store.KeyDeviceID)
}
