package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type Config struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty leaves the global no-op provider.
	Endpoint    string
	ServiceName string
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider exporting to cfg.Endpoint.
func Setup(ctx context.Context, cfg Config, log *zap.Logger) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		log.Info("tracing disabled, no OTLP endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(Resource(cfg.ServiceName)),
	)
	otel.SetTracerProvider(tp)

	log.Info("tracing enabled", zap.String("endpoint", cfg.Endpoint), zap.String("service", cfg.ServiceName))
	return tp.Shutdown, nil
}

func Resource(serviceName string) *resource.Resource {
	if serviceName == "" {
		serviceName = "soundwork"
	}
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}
