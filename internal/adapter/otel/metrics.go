package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "loopforge"

// Metrics holds all LoopForge metric instruments.
type Metrics struct {
	CyclesStarted   metric.Int64Counter
	CyclesCompleted metric.Int64Counter
	ToolCalls       metric.Int64Counter
	ToolErrors      metric.Int64Counter
	PhaseDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CyclesStarted, err = meter.Int64Counter("loopforge.cycles.started",
		metric.WithDescription("Number of cycles started"))
	if err != nil {
		return nil, err
	}

	m.CyclesCompleted, err = meter.Int64Counter("loopforge.cycles.completed",
		metric.WithDescription("Number of cycles completed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("loopforge.toolcalls",
		metric.WithDescription("Number of tool calls"))
	if err != nil {
		return nil, err
	}

	m.ToolErrors, err = meter.Int64Counter("loopforge.toolcalls.errors",
		metric.WithDescription("Number of tool calls that returned an error"))
	if err != nil {
		return nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram("loopforge.phase.duration_seconds",
		metric.WithDescription("Phase duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// The helpers below tolerate a nil receiver so services can run with
// telemetry unwired, as in tests and the stdio transport.

// AddCycleStarted counts one run_cycle invocation.
func (m *Metrics) AddCycleStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.CyclesStarted.Add(ctx, 1)
}

// AddCycleCompleted counts one completed cycle.
func (m *Metrics) AddCycleCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.CyclesCompleted.Add(ctx, 1)
}

// AddToolCall counts one MCP tool call.
func (m *Metrics) AddToolCall(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// AddToolError counts one tool call that returned an error.
func (m *Metrics) AddToolError(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.ToolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordPhase records how long one phase took.
func (m *Metrics) RecordPhase(ctx context.Context, phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("phase", phase)))
}
