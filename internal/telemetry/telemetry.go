// Package telemetry sets up OpenTelemetry tracing and metrics for backend
// calls. Exporters write to rotated files next to the log.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jwulff/debate/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const instrumentationName = "github.com/jwulff/debate"

// Providers bundles the tracer and meter used by the API client.
type Providers struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	shutdown func(context.Context) error
}

// Noop returns providers that record nothing.
func Noop() Providers {
	return Providers{
		Tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		Meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
		shutdown: func(context.Context) error { return nil },
	}
}

// Shutdown flushes exporters and closes the telemetry files.
func (p Providers) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Init configures file-backed trace and metric exporters in dir.
func Init(ctx context.Context, dir, version string) (Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("debate"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return Providers{}, fmt.Errorf("create resource: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Providers{}, fmt.Errorf("create telemetry directory: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "debate_traces.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return Providers{}, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "debate_metrics.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		return Providers{}, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second)),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger := logging.WithComponent("telemetry")
	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer provider")
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown meter provider")
			if firstErr == nil {
				firstErr = err
			}
		}
		traceFile.Close()
		metricsFile.Close()
		return firstErr
	}

	return Providers{
		Tracer:   tp.Tracer(instrumentationName),
		Meter:    mp.Meter(instrumentationName),
		shutdown: shutdown,
	}, nil
}
