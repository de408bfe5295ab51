package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// config is the telemetry.json5 shape. One OTLP endpoint serves both
// traces and metrics; protocol selects the transport.
type config struct {
	Otlp struct {
		// Protocol is "grpc" or "http".
		Protocol string            `json:"protocol"`
		Endpoint string            `json:"endpoint"`
		Headers  map[string]string `json:"headers"`
	} `json:"otlp"`
}

const exporterDialTimeout = time.Second * 3

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, c config) (*trace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	var exporter trace.SpanExporter
	var err error
	switch c.Otlp.Protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(c.Otlp.Endpoint),
			otlptracegrpc.WithHeaders(c.Otlp.Headers),
		)
	case "", "http":
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(c.Otlp.Endpoint),
			otlptracehttp.WithHeaders(c.Otlp.Headers),
		)
	default:
		return nil, fmt.Errorf("unknown otlp protocol %q", c.Otlp.Protocol)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("trace exporter initialized", "protocol", c.Otlp.Protocol, "endpoint", c.Otlp.Endpoint)

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, c config) (*metric.MeterProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	var exporter metric.Exporter
	var err error
	switch c.Otlp.Protocol {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(c.Otlp.Endpoint),
			otlpmetricgrpc.WithHeaders(c.Otlp.Headers),
		)
	case "", "http":
		exporter, err = otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(c.Otlp.Endpoint),
			otlpmetrichttp.WithHeaders(c.Otlp.Headers),
		)
	default:
		return nil, fmt.Errorf("unknown otlp protocol %q", c.Otlp.Protocol)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("metric exporter initialized", "protocol", c.Otlp.Protocol, "endpoint", c.Otlp.Endpoint)

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(time.Second*30))),
		metric.WithResource(r),
	), nil
}
