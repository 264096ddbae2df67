package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const telemetryLogPrefix = "server:telemetry"

// TelemetryParams configures SetupTelemetry.
type TelemetryParams struct {
	ServiceName string
	// Writer receives exported spans and metrics. Defaults to stderr.
	Writer io.Writer
	// MetricInterval is the export period. Defaults to 30s.
	MetricInterval time.Duration
	// Global also installs the providers as the otel globals.
	Global bool
}

// Telemetry holds the SDK providers created by SetupTelemetry.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// SetupTelemetry creates tracer and meter providers that export to a writer in JSON.
func SetupTelemetry(ctx context.Context, p TelemetryParams) (*Telemetry, error) {
	w := p.Writer
	if w == nil {
		w = os.Stderr
	}
	interval := p.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	res := resource.NewSchemaless(attribute.String("service.name", p.ServiceName))

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("%s - trace exporter: %w", telemetryLogPrefix, err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("%s - metric exporter: %w", telemetryLogPrefix, err)
	}

	t := &Telemetry{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		),
		MeterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		),
	}
	if p.Global {
		otel.SetTracerProvider(t.TracerProvider)
		otel.SetMeterProvider(t.MeterProvider)
	}
	slog.Info(fmt.Sprintf("%s - OpenTelemetry enabled for %s", telemetryLogPrefix, p.ServiceName))
	return t, nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.TracerProvider.Shutdown(ctx), t.MeterProvider.Shutdown(ctx))
}
