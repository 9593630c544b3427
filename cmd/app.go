package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
	"github.com/nextlevelbuilder/mirrorpair/internal/pairing"
	"github.com/nextlevelbuilder/mirrorpair/internal/remote"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	storeopen "github.com/nextlevelbuilder/mirrorpair/internal/store/open"
)

// app bundles what a pairing command needs: config, store, client, controller.
type app struct {
	cfg    *config.Config
	kv     store.KV
	client *remote.Client
	ctrl   *pairing.Controller

	stopTracing func()
}

// loadConfig loads the config at the resolved path and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg.Log.Level)
	return cfg, nil
}

// newApp wires the controller. available is the initial availability flag.
func newApp(ctx context.Context, available bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	kv, err := storeopen.Store(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	client := newClient(cfg)
	ctrl, err := pairing.NewController(pairing.Config{
		Remote:         client,
		Store:          kv,
		Available:      available,
		RefreshTimeout: cfg.Timeout(),
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		kv:          kv,
		client:      client,
		ctrl:        ctrl,
		stopTracing: initTracing(ctx, cfg),
	}, nil
}

func newClient(cfg *config.Config) *remote.Client {
	var signer remote.Signer
	if cfg.Service.CSRFToken != "" {
		signer = remote.CSRFSigner{Token: cfg.Service.CSRFToken}
	}
	return remote.New(remote.Options{
		BaseURL:      cfg.Service.BaseURL,
		Timeout:      cfg.Timeout(),
		RateLimitRPM: cfg.Service.RateLimitRPM,
		Signer:       signer,
		UserAgent:    "mirrorpair/" + Version,
	})
}

// Close stops the controller and releases the store.
func (a *app) Close() {
	a.ctrl.Close()
	a.kv.Close()
	a.stopTracing()
}

// mustApp is newApp for Run funcs: it prints the error and exits.
func mustApp(ctx context.Context, available bool) *app {
	a, err := newApp(ctx, available)
	if err != nil {
		exitErr(err)
	}
	return a
}

// exit closes the app, flushing spans and releasing the store, then
// reports err and exits 1. Deferred calls do not run on os.Exit.
func (a *app) exit(err error) {
	a.Close()
	exitErr(err)
}

// exitClose is exit for commands that hold only a store.
func exitClose(c io.Closer, err error) {
	c.Close()
	exitErr(err)
}

// osExit is swapped in tests.
var osExit = os.Exit

// exitErr prints err the way every command reports failures and exits 1.
func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	osExit(1)
}
