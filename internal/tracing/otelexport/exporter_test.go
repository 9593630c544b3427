package otelexport

import (
	"context"
	"testing"
)

func TestSetup_EmptyEndpoint(t *testing.T) {
	if _, err := Setup(context.Background(), Config{}); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestSetup_UnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), Config{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestSetup_HTTPAndShutdown(t *testing.T) {
	// The exporter connects lazily, so no collector needs to be listening.
	p, err := Setup(context.Background(), Config{
		Endpoint: "127.0.0.1:4318",
		Protocol: "http",
		Insecure: true,
		Headers:  map[string]string{"x-api-key": "k"},
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestProvider_ShutdownNil(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown: %v", err)
	}
}
