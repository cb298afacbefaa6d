// Package telemetry wires tool dispatch into OpenTelemetry tracing and
// metrics. It is deliberately thin: activities own the decision of what to
// record, this package owns the OTEL plumbing (tracer/meter acquisition,
// span/attribute naming, instrument caching).
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module's span/meter scope to OTEL
// exporters and backends.
const instrumentationName = "github.com/stratumhq/stratum-agent/internal/telemetry"

// ToolEmitter records a span and duration/count metrics around a single
// tool dispatch. One ToolEmitter is created per worker process and shared
// across activity invocations; its instruments are created once and reused.
type ToolEmitter struct {
	tracer trace.Tracer

	mu        sync.Mutex
	callCount metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewToolEmitter constructs a ToolEmitter against the current global
// TracerProvider/MeterProvider. Call after InstallProviders (or after the
// caller's own equivalent) so spans/metrics are not silently dropped by the
// no-op default providers.
func NewToolEmitter() *ToolEmitter {
	meter := otel.Meter(instrumentationName)

	callCount, _ := meter.Int64Counter(
		"stratum.tool.calls",
		metric.WithDescription("Number of tool dispatches, by tool name and outcome."),
	)
	duration, _ := meter.Float64Histogram(
		"stratum.tool.duration_ms",
		metric.WithDescription("Tool dispatch wall-clock duration in milliseconds."),
		metric.WithUnit("ms"),
	)

	return &ToolEmitter{
		tracer:    otel.Tracer(instrumentationName),
		callCount: callCount,
		duration:  duration,
	}
}

// Outcome classifies how a tool dispatch ended, for metric cardinality and
// span status.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// Begin starts a span named "tool.<name>" for a single tool call and returns
// a context carrying it plus a finish function. Callers should defer the
// finish function, passing the call's outcome.
//
// One Begin always has exactly one matching finish, recorded as span
// start/end plus one counter increment and one histogram observation.
func (e *ToolEmitter) Begin(ctx context.Context, toolName, callID string) (context.Context, func(outcome Outcome, errMsg string)) {
	start := time.Now()
	spanCtx, span := e.tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", callID),
		),
	)

	finish := func(outcome Outcome, errMsg string) {
		elapsed := time.Since(start)

		attrs := []attribute.KeyValue{
			attribute.String("tool.name", toolName),
			attribute.String("tool.outcome", string(outcome)),
		}

		if e.callCount != nil {
			e.callCount.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if e.duration != nil {
			e.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attrs...))
		}

		switch outcome {
		case OutcomeSuccess:
			span.SetStatus(codes.Ok, "")
		case OutcomeFailure:
			span.SetStatus(codes.Ok, errMsg) // tool ran, reported a model-facing failure — not a span error
		case OutcomeError:
			span.SetStatus(codes.Error, errMsg)
		}
		if errMsg != "" {
			span.SetAttributes(attribute.String("tool.error", errMsg))
		}
		span.End()
	}

	return spanCtx, finish
}
