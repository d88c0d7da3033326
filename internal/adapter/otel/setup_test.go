package otel

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerInstallsPropagator(t *testing.T) {
	shutdown := InitTracer("test")

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	fields := otel.GetTextMapPropagator().Fields()
	if !slices.Contains(fields, "traceparent") {
		t.Errorf("traceparent not in propagator fields: %v", fields)
	}
}
