// Package storetest holds the behaviour every store.KV driver must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

// Run exercises kv against the store.KV contract. kv must start empty.
func Run(t *testing.T, kv store.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing_key", func(t *testing.T) {
		_, err := kv.Get(ctx, "absent")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set_get", func(t *testing.T) {
		if err := kv.Set(ctx, store.KeyDeviceID, "d1"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := kv.Get(ctx, store.KeyDeviceID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "d1" {
			t.Errorf("Get = %q, want %q", got, "d1")
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		kv.Set(ctx, store.KeyPairToken, "tok1")
		kv.Set(ctx, store.KeyPairToken, "tok2")
		got, err := kv.Get(ctx, store.KeyPairToken)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "tok2" {
			t.Errorf("Get = %q, want tok2 (last write wins)", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		kv.Set(ctx, "gone", "x")
		if err := kv.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := kv.Get(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
		}
		if err := kv.Delete(ctx, "gone"); err != nil {
			t.Errorf("second Delete should be a no-op, got %v", err)
		}
	})

	t.Run("empty_key", func(t *testing.T) {
		if err := kv.Set(ctx, "", "x"); err == nil {
			t.Error("Set with empty key should fail")
		}
		if _, err := kv.Get(ctx, ""); err == nil || errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get with empty key error = %v, want a validation error", err)
		}
		if err := kv.Delete(ctx, ""); err == nil {
			t.Error("Delete with empty key should fail")
		}
	})
}
