package pipeflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the OTLP exporter used for per-item pipeline spans.
type TracingConfig struct {
	ServiceName string
	Endpoint    string
	UseHTTP     bool
	Insecure    bool
	SampleRate  float64

	BatchTimeout time.Duration
}

// DefaultTracingConfig returns sane defaults for local development: gRPC,
// insecure transport, every item traced.
func DefaultTracingConfig(serviceName, endpoint string) TracingConfig {
	return TracingConfig{
		ServiceName:  serviceName,
		Endpoint:     endpoint,
		Insecure:     true,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
	}
}

// tracerProvider wraps an OTel SDK tracer provider, installed globally so any
// node's context carries a live span without the node needing to know about
// OpenTelemetry at all.
type tracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTLPTracing sets up distributed tracing for item execution: every
// runItem call becomes a span named "pipeline.<name>", child spans named
// "node.<name>" wrap each node invocation. Call the returned shutdown func
// when the process exits to flush pending spans.
func NewOTLPTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	tp := &tracerProvider{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}
	activeTracer = tp

	return provider.Shutdown, nil
}

// activeTracer is nil until NewOTLPTracing runs, in which case item/node
// spans are skipped entirely — tracing is opt-in, not a hard dependency of
// the executor.
var activeTracer *tracerProvider

func startItemSpan(ctx context.Context, pipeline string, key any) (context.Context, trace.Span) {
	if activeTracer == nil {
		return ctx, nil
	}
	ctx, span := activeTracer.tracer.Start(ctx, "pipeline."+pipeline, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("pipeflow.item_key", toAttrString(key)))
	return ctx, span
}

func startNodeSpan(ctx context.Context, node string) (context.Context, trace.Span) {
	if activeTracer == nil {
		return ctx, nil
	}
	return activeTracer.tracer.Start(ctx, "node."+node, trace.WithSpanKind(trace.SpanKindInternal))
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func toAttrString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}

func newExporter(ctx context.Context, cfg TracingConfig) (*otlptrace.Exporter, error) {
	if cfg.UseHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}
