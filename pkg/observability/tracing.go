// Package observability sets up OpenTelemetry tracing for the tap. Spans are
// created by the HTTP client and the orchestrator through the global tracer
// provider; without Setup they go to the no-op provider.
package observability

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ajitpratap0/simpro-tap/pkg/errors"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// SamplingRate is the fraction of root spans kept, 0 through 1
	SamplingRate float64
	// Writer receives exported spans as JSON; defaults to stderr so stdout
	// stays reserved for Singer messages
	Writer       io.Writer
	PrettyPrint  bool
	BatchTimeout time.Duration
}

// DefaultTracingConfig returns a config that samples everything to stderr
func DefaultTracingConfig(version string) TracingConfig {
	return TracingConfig{
		ServiceName:    "simpro-tap",
		ServiceVersion: version,
		SamplingRate:   1.0,
		Writer:         os.Stderr,
		BatchTimeout:   5 * time.Second,
	}
}

// ShutdownFunc flushes pending spans and stops the provider
type ShutdownFunc func(ctx context.Context) error

// Setup installs a tracer provider exporting to config.Writer as the global
// provider. The returned function must be called before exit to flush spans.
func Setup(config TracingConfig) (ShutdownFunc, error) {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 5 * time.Second
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace resource")
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(config.Writer)}
	if config.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to shut down tracer provider")
		}
		return nil
	}, nil
}
