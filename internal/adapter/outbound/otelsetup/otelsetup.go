// Package otelsetup wires the stdout trace/metric exporters into tracer and
// meter providers, following the teacher's go.mod otel stack (the teacher
// carries the dependency but never wires it; this port gives it a home
// around the policy store's Evaluate and processUpdate paths).
package otelsetup

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Providers bundles the tracer and meter providers created by Setup, plus
// their combined Shutdown.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// Tracer returns a tracer scoped to name.
func (p *Providers) Tracer(name string) trace.Tracer {
	return p.TracerProvider.Tracer(name)
}

// Meter returns a meter scoped to name.
func (p *Providers) Meter(name string) metric.Meter {
	return p.MeterProvider.Meter(name)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.MeterProvider.Shutdown(ctx)
}

// Setup builds a stdout-backed tracer and meter provider pair for
// serviceName, and installs them as the global providers. Intended for
// local development and the CLI's evaluate command; a production
// deployment would swap the stdout exporters for an OTLP collector without
// touching callers, since they only ever see the Providers/Tracer/Meter
// surface.
func Setup(ctx context.Context, serviceName string) (*Providers, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Providers{TracerProvider: tp, MeterProvider: mp}, nil
}
