package otel

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects how telemetry leaves the process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string // "development" or "production"
	Exporter       string // "stdout" or "otlp"
	Insecure       bool   // plain HTTP for the OTLP endpoint
}

// ConfigFromEnv reads the OTEL_* variables, defaulting to a stdout exporter
// in development.
func ConfigFromEnv() Config {
	env := envOrDefault("OTEL_ENVIRONMENT", "development")
	return Config{
		ServiceName:    envOrDefault("OTEL_SERVICE_NAME", "tallyiq"),
		ServiceVersion: envOrDefault("OTEL_SERVICE_VERSION", "0.1.0"),
		Environment:    env,
		Exporter:       envOrDefault("OTEL_EXPORTER", "stdout"),
		Insecure:       env == "development",
	}
}

// Providers owns the globally registered tracer and meter providers.
// Shutdown flushes pending telemetry and must run on exit.
type Providers struct {
	Shutdown func(ctx context.Context) error
}

// Setup builds span and metric exporters per Config, installs global
// providers around them, and wires W3C trace-context propagation.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	spans, metrics, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(spans),
	)
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metrics)),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdowns := []func(context.Context) error{tp.Shutdown, mp.Shutdown}
	return &Providers{
		Shutdown: func(ctx context.Context) error {
			var errs []error
			for _, stop := range shutdowns {
				errs = append(errs, stop(ctx))
			}
			if err := errors.Join(errs...); err != nil {
				return fmt.Errorf("otel shutdown: %w", err)
			}
			return nil
		},
	}, nil
}

// newExporters returns the span and metric exporters for the configured
// backend. Both always target the same backend, keeping traces and metrics
// correlated in one place.
func newExporters(ctx context.Context, cfg Config) (trace.SpanExporter, metric.Exporter, error) {
	switch cfg.Exporter {
	case "otlp":
		var traceOpts []otlptracehttp.Option
		var metricOpts []otlpmetrichttp.Option
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		spans, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		metrics, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		return spans, metrics, nil
	case "stdout":
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		metrics, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return spans, metrics, nil
	default:
		return nil, nil, fmt.Errorf("unsupported exporter: %q (use \"stdout\" or \"otlp\")", cfg.Exporter)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
