package eventbus

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// TraceConfig mirrors the teacher's tracing.Config shape: a service
// identity, an OTLP endpoint, and an enabled switch so tracing can be
// turned off entirely in local/dev without touching call sites.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// InitTracer wires up the global TracerProvider and the composite
// TraceContext+Baggage propagator used by both the HTTP admin surface
// and the AMQP header carrier below, so a trace started by an operator
// HTTP call and one started by a republished event use the same
// propagation format.
func InitTracer(cfg TraceConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	client := otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	exporter, err := otlptrace.NewWithClient(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("eventbus: creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tp.Tracer(cfg.ServiceName)
	return tp.Shutdown, nil
}

// StartSpan starts a span named name, falling back to the no-op
// tracer when InitTracer was never called (tracing disabled).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on the span already in ctx, if any.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err)
}

// amqpHeaderCarrier adapts an amqp091.Table to propagation.TextMapCarrier
// so the same TraceContext+Baggage propagator used over HTTP headers
// can inject/extract through AMQP message headers. amqp091.Table keys
// are case-sensitive strings and values are `interface{}`; carrier
// methods only ever read/write string values, matching what
// traceparent/tracestate/baggage headers need.
type amqpHeaderCarrier struct {
	table amqp.Table
}

func newAMQPHeaderCarrier(table amqp.Table) *amqpHeaderCarrier {
	if table == nil {
		table = amqp.Table{}
	}
	return &amqpHeaderCarrier{table: table}
}

// Get implements propagation.TextMapCarrier.
func (c *amqpHeaderCarrier) Get(key string) string {
	v, ok := c.table[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set implements propagation.TextMapCarrier.
func (c *amqpHeaderCarrier) Set(key, value string) {
	c.table[key] = value
}

// Keys implements propagation.TextMapCarrier.
func (c *amqpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.table))
	for k := range c.table {
		keys = append(keys, k)
	}
	return keys
}

// injectTraceContext writes ctx's trace/baggage state into headers,
// returning the (possibly newly allocated) table so callers can assign
// it straight to amqp091.Publishing.Headers.
func injectTraceContext(ctx context.Context, headers amqp.Table) amqp.Table {
	carrier := newAMQPHeaderCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.table
}

// extractTraceContext returns a context carrying the trace/baggage
// state found in headers, or ctx unchanged if headers carries none.
func extractTraceContext(ctx context.Context, headers amqp.Table) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, newAMQPHeaderCarrier(headers))
}
