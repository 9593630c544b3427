package keyring

import (
	"context"
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/storetest"
)

func TestKV_Contract(t *testing.T) {
	keyring.MockInit()
	storetest.Run(t, New("mirrorpair-test"))
}

type failingProvider struct{ err error }

func (p failingProvider) Set(string, string, string) error   { return p.err }
func (p failingProvider) Get(string, string) (string, error) { return "", p.err }
func (p failingProvider) Delete(string, string) error        { return p.err }

func TestKV_WrapsProviderErrors(t *testing.T) {
	boom := errors.New("keychain locked")
	kv := &KV{service: "x", provider: failingProvider{err: boom}}

	_, err := kv.Get(context.Background(), store.KeyPairToken)
	if !errors.Is(err, boom) {
		t.Errorf("Get error = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Error("provider failure must not look like a missing key")
	}
	if err := kv.Set(context.Background(), store.KeyPairToken, "t"); !errors.Is(err, boom) {
		t.Errorf("Set error = %v, want wrapped %v", err, boom)
	}
}

func TestNew_DefaultService(t *testing.T) {
	if kv := New(""); kv.service != "mirrorpair" {
		t.Errorf("service = %q, want mirrorpair", kv.service)
	}
}
