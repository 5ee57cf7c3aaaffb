package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryOptions selects where spans and log records go.
type TelemetryOptions struct {
	ServiceName string
	// Exporter is "stdout" or "none".
	Exporter string
	// Writer overrides os.Stdout for the stdout exporter.
	Writer io.Writer
}

// SetupTelemetry installs the global tracer and logger providers used by the
// per-package otel tracers and otelslog loggers. With Exporter "none" the
// globals stay no-op. The returned func flushes and shuts both providers down.
func SetupTelemetry(ctx context.Context, opts TelemetryOptions) (func(context.Context) error, error) {
	switch opts.Exporter {
	case "none":
		return func(context.Context) error { return nil }, nil
	case "", "stdout":
	default:
		return nil, fmt.Errorf("unsupported telemetry exporter %q", opts.Exporter)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "docent"
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("span exporter: %w", err)
	}
	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, fmt.Errorf("log exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	global.SetLoggerProvider(loggerProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(loggerProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
	}
	return shutdown, nil
}
