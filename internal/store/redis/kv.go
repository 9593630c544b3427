// Package redis implements store.KV on a Redis server, for kiosks that keep
// their state on a shared host.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string // key prefix, "<namespace>:<key>"
}

// KV stores each key as a plain Redis string without expiry.
type KV struct {
	client *goredis.Client
	prefix string
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options) (*KV, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewKV(client, opts.Namespace), nil
}

// NewKV wraps an existing client.
func NewKV(client *goredis.Client, namespace string) *KV {
	if namespace == "" {
		namespace = "mirrorpair"
	}
	return &KV{client: client, prefix: namespace + ":"}
}

func (r *KV) Get(ctx context.Context, key string) (string, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *KV) Set(ctx context.Context, key, value string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *KV) Delete(ctx context.Context, key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (r *KV) Close() error {
	return r.client.Close()
}
