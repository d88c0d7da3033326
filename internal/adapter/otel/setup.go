// Package otel provides OpenTelemetry instrumentation for LoopForge.
// Only the API layer is wired; without an SDK exporter configured the
// spans and metrics are no-ops.
package otel

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer installs the W3C trace context propagator and returns a no-op
// shutdown function. Incoming traceparent headers thread through the server
// even before an exporter exists; wiring an OTLP exporter and TracerProvider
// here turns the spans live without touching call sites.
func InitTracer(serviceName string) ShutdownFunc {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Debug("otel: tracer provider not configured, spans are no-ops", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
