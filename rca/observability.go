package rca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odit-bit/rcaccelerator/rca/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

func metricReaders(ctx context.Context, cfg config.ObsConfig) ([]metric.Reader, error) {
	var readers []metric.Reader

	// pulled by /metrics
	if cfg.Prometheus {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		readers = append(readers, exporter)
	}
	if !cfg.Enable {
		return readers, nil
	}

	var metricExporter metric.Exporter
	var err error
	if cfg.Exporter == ExporterOTLP {
		opts := []otlpmetrichttp.Option{}
		if cfg.MetricsEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.MetricsEndpoint))
		}
		if !cfg.Secure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err = otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp http metric exporter: %w", err)
		}
	} else {
		slog.Debug("Initilize stdout metric")
		metricExporter, err = stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
	}
	return append(readers, metric.NewPeriodicReader(metricExporter)), nil
}

func traceExporter(ctx context.Context, cfg config.ObsConfig) (trace.SpanExporter, error) {
	if cfg.Exporter == ExporterOTLP {
		opts := []otlptracehttp.Option{}
		if cfg.TraceEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.TraceEndpoint))
		}
		if !cfg.Secure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp http trace exporter: %w", err)
		}
		return exp, nil
	}

	slog.Debug("Initilize stdout trace")
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return exp, nil
}

// Initializes and configures OpenTelemetry for the service.
// It returns a shutdown function that must be called on application exit.
func InitObservability(ctx context.Context, serviceName string, cfg config.ObsConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create otel resource: %w", err)
	}

	sfn := []func(context.Context) error{}

	// --- METER PROVIDER ---
	readers, err := metricReaders(ctx, cfg)
	if err != nil {
		return noop, err
	}
	if len(readers) > 0 {
		opts := []metric.Option{metric.WithResource(res)}
		for _, r := range readers {
			opts = append(opts, metric.WithReader(r))
		}
		meterProvider := metric.NewMeterProvider(opts...)
		otel.SetMeterProvider(meterProvider)
		sfn = append(sfn, meterProvider.Shutdown)
	}

	// --- TRACER PROVIDER ---
	if cfg.Enable {
		exp, err := traceExporter(ctx, cfg)
		if err != nil {
			return noop, err
		}
		tracerProvider := trace.NewTracerProvider(
			trace.WithBatcher(exp),
			trace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		sfn = append(sfn, tracerProvider.Shutdown)
	}

	// Set the global propagator to tracecontext.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	slog.Info("observability initialized", "enable", cfg.Enable, "exporter", cfg.Exporter, "prometheus", cfg.Prometheus)
	return func(ctx context.Context) error {
		var shutdownErr error
		for _, fn := range sfn {
			shutdownErr = errors.Join(shutdownErr, fn(ctx))
		}
		return shutdownErr
	}, nil
}
