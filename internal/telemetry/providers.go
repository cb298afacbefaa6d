package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ProviderConfig configures the process-wide OTEL providers. They are
// installed once at worker startup and never swapped afterwards.
type ProviderConfig struct {
	// ServiceName identifies this worker process in exported telemetry.
	ServiceName string

	// ServiceVersion is the stratum-agent worker version.
	ServiceVersion string

	// OTLPEndpoint is the OTLP/gRPC collector endpoint (host:port). If empty,
	// providers are still installed but export is disabled — spans/metrics
	// are created and discarded, so call sites never need a feature check.
	OTLPEndpoint string

	// Insecure disables TLS for the OTLP connection (local dev only).
	Insecure bool
}

// InstallProviders builds and registers the global TracerProvider and
// MeterProvider for the process. It returns a shutdown function that flushes
// and closes both exporters; callers should defer it from main().
//
// Safe to call with OTLPEndpoint == "": the returned providers still satisfy
// every otel.Tracer/otel.Meter call, they just have no span/metric reader
// wired to a live exporter, so NewToolEmitter never needs a nil check.
func InstallProviders(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var shutdownFns []func(context.Context) error

	if cfg.OTLPEndpoint != "" {
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}

		traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdownFns = append(shutdownFns, tp.Shutdown)

		metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(15*time.Second))),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdownFns = append(shutdownFns, mp.Shutdown)
	} else {
		// No collector configured: install SDK providers with no exporter
		// attached, rather than leaving the otel package defaults (no-op)
		// in place. Spans and metrics are recorded with the resource
		// attributes and then discarded; no reader is added afterwards.
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		shutdownFns = append(shutdownFns, tp.Shutdown)

		mp := metric.NewMeterProvider(metric.WithResource(res))
		otel.SetMeterProvider(mp)
		shutdownFns = append(shutdownFns, mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(shutdownCtx context.Context) error {
		var firstErr error
		for _, fn := range shutdownFns {
			if err := fn(shutdownCtx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

// ProviderConfigFromEnv builds a ProviderConfig from the conventional OTEL
// environment variables, falling back to disabled export when unset.
func ProviderConfigFromEnv(serviceName, serviceVersion string) ProviderConfig {
	return ProviderConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	}
}
