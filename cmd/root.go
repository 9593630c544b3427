// Package cmd implements the mirrorpair command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool

	logLevel = new(slog.LevelVar)
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mirrorpair",
		Short: "Pair this device with another through a pairing service",
		Long: `mirrorpair starts, joins and keeps alive a device pairing session.

A pairing is identified by a short-lived token. One device initiates and shows
the token as a QR code; the other scans it and completes. The session is
renewed automatically while the device is available for pairing.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging("info")
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $MIRRORPAIR_CONFIG or ~/.mirrorpair/config.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(pairingCmd())
	root.AddCommand(deviceCmd())
	root.AddCommand(configCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())

	return root
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns --config, then $MIRRORPAIR_CONFIG, then the default.
func resolveConfigPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	if env := os.Getenv("MIRRORPAIR_CONFIG"); env != "" {
		return config.ExpandHome(env)
	}
	return config.DefaultPath()
}

// setupLogging installs the stderr text handler. --verbose wins over level.
func setupLogging(level string) {
	applyLogLevel(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// applyLogLevel changes the level of the installed handler in place.
func applyLogLevel(level string) {
	if verbose {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch config.NormalizeLogLevel(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
