// Package file implements store.KV as a single JSON document on disk.
// This is the default driver.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

type document struct {
	Values    map[string]string `json:"values"`
	UpdatedAt int64             `json:"updated_at"` // unix millis
}

// KV keeps every key in memory and rewrites the whole file on each change.
type KV struct {
	path string
	doc  document
	mu   sync.Mutex
}

// Open loads the store at path, creating nothing until the first write.
// A corrupt file is logged and treated as empty.
func Open(path string) (*KV, error) {
	kv := &KV{
		path: path,
		doc:  document{Values: make(map[string]string)},
	}
	if err := kv.load(); err != nil {
		return nil, err
	}
	return kv, nil
}

func (f *KV) Get(_ context.Context, key string) (string, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.doc.Values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *KV) Set(_ context.Context, key, value string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.doc.Values[key]
	f.doc.Values[key] = value
	if err := f.save(); err != nil {
		if had {
			f.doc.Values[key] = prev
		} else {
			delete(f.doc.Values, key)
		}
		return err
	}
	return nil
}

func (f *KV) Delete(_ context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.doc.Values[key]
	if !had {
		return nil
	}
	delete(f.doc.Values, key)
	if err := f.save(); err != nil {
		f.doc.Values[key] = prev
		return err
	}
	return nil
}

func (f *KV) Close() error { return nil }

// Path returns the backing file path.
func (f *KV) Path() string { return f.path }

func (f *KV) load() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store %s: %w", f.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("store: ignoring unreadable state file", "path", f.path, "error", err)
		return nil
	}
	if doc.Values != nil {
		f.doc = doc
	}
	return nil
}

// save writes to a temp file and renames it over the target.
// Caller must hold f.mu.
func (f *KV) save() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	f.doc.UpdatedAt = time.Now().UnixMilli()
	data, err := json.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
