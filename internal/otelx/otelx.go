// Package otelx wires the process-global OpenTelemetry tracer. The server
// exports spans over OTLP gRPC to a collector on localhost; when tracing is
// off it still installs a provider so instrumentation stays cheap no-ops.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// exporter dial is bounded: a down collector must not hold up startup
	dialTimeout = 3 * time.Second

	batchQueueSize = 2048
	batchTimeout   = 5 * time.Second
)

type Options struct {
	Enabled   bool
	Endpoint  string
	Insecure  bool
	Sample    float64
	Service   string
	Component string
	Version   string
}

// Init installs the global tracer provider and W3C propagators and returns
// the provider's shutdown func. With Enabled false the provider has no
// exporter, so spans are created and dropped.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	if !o.Enabled {
		installGlobals(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	expOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		// the collector sits on localhost and forwards upstream itself
		expOpts = append(expOpts, otlptracegrpc.WithInsecure())
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, expOpts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(o.Sample),
		)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(batchQueueSize),
			sdktrace.WithBatchTimeout(batchTimeout),
		),
		sdktrace.WithResource(describeProcess(ctx, o)),
	)
	installGlobals(tp)
	return tp.Shutdown, nil
}

// describeProcess builds the resource attached to every span. Resource
// detection failures are non-fatal; whatever was detected still ships.
func describeProcess(ctx context.Context, o Options) *resource.Resource {
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.Service+"."+o.Component),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)
	return res
}

func installGlobals(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}
