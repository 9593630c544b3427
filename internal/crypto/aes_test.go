package crypto

import (
	"errors"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("pair-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "pair-token") {
		t.Fatalf("sealed = %q", sealed)
	}

	again, _ := s.Seal("pair-token")
	if again == sealed {
		t.Error("two seals of the same value should differ (random nonce)")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "pair-token" {
		t.Errorf("Open = %q", got)
	}
}

func TestSealer_PlainPassthrough(t *testing.T) {
	s, _ := NewSealer(testKey)
	if got, err := s.Open("legacy-value"); err != nil || got != "legacy-value" {
		t.Errorf("Open(plain) = %q, %v", got, err)
	}
	if got, _ := s.Seal(""); got != "" {
		t.Errorf("Seal(\"\") = %q", got)
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a, _ := NewSealer(testKey)
	b, _ := NewSealer(strings.Repeat("k", 32))

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Errorf("Open with wrong key err = %v, want ErrOpen", err)
	}
	if _, err := a.Open(prefix + "!!notbase64"); !errors.Is(err, ErrOpen) {
		t.Errorf("Open garbage err = %v, want ErrOpen", err)
	}
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", testKey, false},
		{"base64", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", false},
		{"raw", strings.Repeat("x", 32), false},
		{"short", "too-short", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := DeriveKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(b) != 32 {
				t.Errorf("len = %d", len(b))
			}
		})
	}
}
