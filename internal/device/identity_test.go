package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/file"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/sqlite"
)

func TestGetOrCreateID_GeneratesUUID(t *testing.T) {
	kv := store.NewMemory()
	id := GetOrCreateID(context.Background(), kv)

	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("id %q is not a UUID: %v", id, err)
	}
	stored, err := kv.Get(context.Background(), store.KeyDeviceID)
	if err != nil || stored != id {
		t.Errorf("stored = %q (%v), want %q", stored, err, id)
	}
}

func TestGetOrCreateID_StableAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(dir, "state.json")
		kv1, err := file.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		first := GetOrCreateID(ctx, kv1)

		kv2, err := file.Open(path) // simulated restart
		if err != nil {
			t.Fatal(err)
		}
		if second := GetOrCreateID(ctx, kv2); second != first {
			t.Errorf("id after restart = %q, want %q", second, first)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(dir, "state.db")
		kv1, err := sqlite.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		first := GetOrCreateID(ctx, kv1)
		kv1.Close()

		kv2, err := sqlite.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer kv2.Close()
		if second := GetOrCreateID(ctx, kv2); second != first {
			t.Errorf("id after restart = %q, want %q", second, first)
		}
	})
}

type readOnlyKV struct{ *store.MemoryKV }

func (readOnlyKV) Set(context.Context, string, string) error { return errors.New("read-only") }

func TestGetOrCreateID_WriteFailureStillReturnsID(t *testing.T) {
	kv := readOnlyKV{store.NewMemory()}
	id := GetOrCreateID(context.Background(), kv)
	if id == "" {
		t.Fatal("expected an id even when persistence fails")
	}
}

func TestReset(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()
	first := GetOrCreateID(ctx, kv)

	if err := Reset(ctx, kv); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if second := GetOrCreateID(ctx, kv); second == first {
		t.Error("expected a new id after Reset")
	}
}
