package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
	"github.com/nextlevelbuilder/mirrorpair/internal/remote"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	storeopen "github.com/nextlevelbuilder/mirrorpair/internal/store/open"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and service health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("mirrorpair doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(config.ExpandHome(cfgPath)); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Storage:")
	checkStore(ctx, cfg.Storage)

	fmt.Println()
	fmt.Println("  Service:")
	fmt.Printf("    %-12s %s\n", "URL:", cfg.Service.BaseURL)
	checkService(ctx, newClient(cfg))

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s (%s)\n", "OTLP:", cfg.Telemetry.Endpoint, orDefault(cfg.Telemetry.Protocol, "grpc"))
	} else {
		fmt.Printf("    %-12s disabled\n", "OTLP:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkStore(ctx context.Context, sc config.StorageConfig) {
	fmt.Printf("    %-12s %s\n", "Driver:", sc.Driver)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	kv, err := storeopen.Store(ctx, sc)
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Open:", err)
		return
	}
	defer kv.Close()
	fmt.Printf("    %-12s OK\n", "Open:")

	id, err := kv.Get(ctx, store.KeyDeviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Printf("    %-12s (not yet assigned)\n", "Device ID:")
	case err != nil:
		fmt.Printf("    %-12s FAILED (%s)\n", "Device ID:", err)
	default:
		fmt.Printf("    %-12s %s\n", "Device ID:", id)
	}

	if tok, err := kv.Get(ctx, store.KeyPairToken); err == nil {
		fmt.Printf("    %-12s %s\n", "Token:", maskSecret(tok))
	} else {
		fmt.Printf("    %-12s (none saved)\n", "Token:")
	}
}

// checkService calls the remaining-TTL endpoint with a dummy token. Any
// HTTP answer, including a rejection, means the service is reachable.
func checkService(ctx context.Context, c *remote.Client) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Remaining(ctx, "doctor-check")
	elapsed := time.Since(start).Round(time.Millisecond)

	if _, rejected := remote.IsRejected(err); err == nil || rejected {
		fmt.Printf("    %-12s reachable (%s)\n", "Status:", elapsed)
		return
	}
	fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", err)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
