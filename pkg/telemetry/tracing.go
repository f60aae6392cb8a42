// Package telemetry provides OpenTelemetry tracing for playground.
// Tracing is off unless enabled in the configuration; the exporter is
// configured through the standard OTEL_EXPORTER_OTLP_* environment variables.
package telemetry

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Sampler names accepted in Config.SamplerType
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// Config represents the configuration for the telemetry system
type Config struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	ServiceVersion string  `mapstructure:"-" yaml:"-"`
	SamplerType    string  `mapstructure:"sampler" yaml:"sampler"`
	SamplerRatio   float64 `mapstructure:"ratio" yaml:"ratio"`
}

// Validate rejects unknown samplers and ratios outside [0, 1]
func (c Config) Validate() error {
	switch c.SamplerType {
	case "", SamplerAlways, SamplerNever:
	case SamplerRatio:
		if c.SamplerRatio < 0 || c.SamplerRatio > 1 {
			return errors.Errorf("tracing.ratio must be between 0 and 1, got %g", c.SamplerRatio)
		}
	default:
		return errors.Errorf("unknown tracing.sampler %q (supported: always, never, ratio)", c.SamplerType)
	}
	return nil
}

// ShutdownFunc flushes and stops whatever InitTracer started
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracer installs the global tracer provider exporting over OTLP/HTTP.
// When tracing is disabled the global no-op provider is left in place.
func InitTracer(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace exporter")
	}

	provider, err := newProvider(ctx, cfg, sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithMaxExportBatchSize(512),
		sdktrace.WithBatchTimeout(time.Second),
	))
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		var result *multierror.Error
		if err := provider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "tracer provider"))
		}
		if err := exporter.Shutdown(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "trace exporter"))
		}
		return result.ErrorOrNil()
	}, nil
}

// newProvider builds a tracer provider that hands finished spans to processor
func newProvider(ctx context.Context, cfg Config, processor sdktrace.SpanProcessor) (*sdktrace.TracerProvider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultTracerName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithSampler(sampler(cfg)),
	), nil
}

func sampler(cfg Config) sdktrace.Sampler {
	switch cfg.SamplerType {
	case SamplerNever:
		return sdktrace.NeverSample()
	case SamplerRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerRatio))
	default:
		return sdktrace.AlwaysSample()
	}
}
