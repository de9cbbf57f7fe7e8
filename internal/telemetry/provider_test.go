package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestSetupNoopWithoutEndpoint verifies tracing stays off by default
func TestSetupNoopWithoutEndpoint(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("No provider should be installed without an endpoint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("No-op shutdown should ignore the context: %v", err)
	}
}

// TestSetupInstallsProvider verifies an endpoint installs the SDK provider
func TestSetupInstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	// Non-routable address so nothing is exported.
	shutdown, err := Setup(context.Background(), Config{Endpoint: "http://192.0.2.1:4318"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("Expected the SDK provider, got %T", otel.GetTracerProvider())
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown should flush cleanly: %v", err)
	}
}
