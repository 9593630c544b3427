package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/storetest"
)

func TestKV_Contract(t *testing.T) {
	kv, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer kv.Close()
	storetest.Run(t, kv)
}

func TestKV_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	kv, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := kv.Set(ctx, store.KeyPairToken, "tok-9"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	kv.Close()

	kv, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()

	got, err := kv.Get(ctx, store.KeyPairToken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "tok-9" {
		t.Errorf("Get = %q, want tok-9", got)
	}
}
