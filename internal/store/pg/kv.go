package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

// KV implements store.KV backed by the mirrorpair_kv table.
// Several installations may share one database; rows are scoped by namespace.
type KV struct {
	db        *sql.DB
	namespace string
}

// NewKV wraps an open database and ensures the table exists.
func NewKV(ctx context.Context, db *sql.DB, namespace string) (*KV, error) {
	kv := &KV{db: db, namespace: namespaceOrDefault(namespace)}
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS mirrorpair_kv (
		namespace VARCHAR(64) NOT NULL,
		key VARCHAR(255) NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		return nil, fmt.Errorf("create mirrorpair_kv: %w", err)
	}
	return kv, nil
}

// Open dials dsn and returns a ready KV that owns the connection.
func Open(ctx context.Context, dsn, namespace string) (*KV, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	kv, err := NewKV(ctx, db, namespace)
	if err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

func (s *KV) Get(ctx context.Context, key string) (string, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM mirrorpair_kv WHERE namespace = $1 AND key = $2", s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

func (s *KV) Set(ctx context.Context, key, value string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mirrorpair_kv (namespace, key, value, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.namespace, key, value, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM mirrorpair_kv WHERE namespace = $1 AND key = $2", s.namespace, key)
	if err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

func (s *KV) Close() error {
	return s.db.Close()
}
