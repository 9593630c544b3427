// Package open selects and opens the configured store.KV driver.
package open

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
	"github.com/nextlevelbuilder/mirrorpair/internal/crypto"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/file"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/keyring"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/pg"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/redis"
	"github.com/nextlevelbuilder/mirrorpair/internal/store/sqlite"
)

// Store opens the driver named by cfg.Driver. With an encryption key the
// driver is wrapped so values are sealed at rest.
func Store(ctx context.Context, cfg config.StorageConfig) (store.KV, error) {
	if cfg.EncryptionKey == "" {
		return driver(ctx, cfg)
	}

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryptionKey: %w", err)
	}
	kv, err := driver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store.NewSealed(kv, sealer), nil
}

func driver(ctx context.Context, cfg config.StorageConfig) (store.KV, error) {
	switch cfg.Driver {
	case "", "file":
		return file.Open(pathOr(cfg.Path, "~/.mirrorpair/state.json"))
	case "sqlite":
		return sqlite.Open(pathOr(cfg.Path, "~/.mirrorpair/state.db"))
	case "postgres":
		return pg.Open(ctx, cfg.DSN, cfg.Namespace)
	case "redis":
		return redis.Open(ctx, redis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.Namespace,
		})
	case "keyring":
		return keyring.New(cfg.KeyringService), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func pathOr(path, def string) string {
	if path == "" {
		path = def
	}
	return config.ExpandHome(path)
}
