//go:build otel

package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
	"github.com/nextlevelbuilder/mirrorpair/internal/tracing/otelexport"
)

// initTracing installs the OpenTelemetry OTLP exporter when the telemetry
// config is enabled and returns its shutdown. Only compiled with -tags otel.
func initTracing(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		slog.Debug("OTel export available but not enabled (set telemetry.enabled + telemetry.endpoint)")
		return func() {}
	}

	p, err := otelexport.Setup(ctx, otelexport.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return func() {}
	}

	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.Telemetry.Endpoint,
		"protocol", cfg.Telemetry.Protocol,
	)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Shutdown(shutdownCtx); err != nil {
			slog.Warn("OTel shutdown failed", "error", err)
		}
	}
}
