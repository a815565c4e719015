package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer provides distributed tracing capabilities using OpenTelemetry.
//
// The tracing system enables:
//   - End-to-end tracing of document ingestion from queue delivery to index
//   - Agent graph profiling node by node
//   - Service dependency mapping (object store, broker, database, LLM API)
//   - Error tracking and debugging
//   - Integration with observability platforms (Jaeger, Tempo, etc.)
//
// Usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "corpus",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317",
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "process_document")
//	defer span.End()
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// TraceConfig configures the distributed tracing behavior.
type TraceConfig struct {
	// ServiceName identifies this service in traces
	ServiceName string

	// ServiceVersion identifies the service version
	ServiceVersion string

	// Environment specifies the deployment environment (production, staging, dev)
	Environment string

	// Endpoint is the OTLP collector endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled
	Endpoint string

	// SamplingRate controls what fraction of traces are recorded (0.0 to 1.0)
	// 1.0 = all traces, 0.1 = 10% of traces
	// Defaults to 1.0 if not specified
	SamplingRate float64

	// Attributes are additional resource attributes to include in all spans
	Attributes map[string]string

	// EnableInsecure disables TLS for the OTLP connection (dev/testing only)
	EnableInsecure bool
}

// SpanOptions configures span creation behavior.
type SpanOptions struct {
	// Kind specifies the span kind (client, server, internal, producer, consumer)
	Kind trace.SpanKind

	// Attributes are key-value pairs attached to the span
	Attributes []attribute.KeyValue
}

// NewTracer creates a new tracer with the given configuration.
// Returns the tracer and a shutdown function that must be called on exit.
//
// If config.Endpoint is empty, a no-op tracer is returned that doesn't export
// traces.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	// If no endpoint, return no-op tracer
	if config.Endpoint == "" {
		return &Tracer{
			tracer: otel.Tracer(config.ServiceName),
			config: config,
		}, func(context.Context) error { return nil }
	}

	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}
	if config.ServiceName == "" {
		config.ServiceName = "corpus"
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(opts...),
	)
	if err != nil {
		// Fallback to no-op tracer if exporter creation fails
		return &Tracer{
			tracer: otel.Tracer(config.ServiceName),
			config: config,
		}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if config.SamplingRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}

	shutdown := func(ctx context.Context) error {
		return provider.Shutdown(ctx)
	}

	return tracer, shutdown
}

// Start creates a new span and returns a context containing it.
// The span should be ended by calling span.End() when the operation completes.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	var options []trace.SpanStartOption

	if len(opts) > 0 {
		opt := opts[0]
		if opt.Kind != 0 {
			options = append(options, trace.WithSpanKind(opt.Kind))
		}
		if len(opt.Attributes) > 0 {
			options = append(options, trace.WithAttributes(opt.Attributes...))
		}
	}

	return t.tracer.Start(ctx, name, options...)
}

// RecordError records an error on the span and sets the span status to error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets multiple attributes on a span.
//
// Example:
//
//	tracer.SetAttributes(span,
//	    "document_id", id,
//	    "chunk_count", len(chunks),
//	)
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		val := keyvals[i+1]
		attrs = append(attrs, attributeFromValue(key, val))
	}
	span.SetAttributes(attrs...)
}

// AddEvent adds an event to the span with optional attributes.
func (t *Tracer) AddEvent(span trace.Span, name string, keyvals ...any) {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		val := keyvals[i+1]
		attrs = append(attrs, attributeFromValue(key, val))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// TracePipelineRun creates a span covering one full ingestion run.
//
// Example:
//
//	ctx, span := tracer.TracePipelineRun(ctx, objectKey)
//	defer span.End()
func (t *Tracer) TracePipelineRun(ctx context.Context, objectKey string) (context.Context, trace.Span) {
	return t.Start(ctx, "pipeline.process", SpanOptions{
		Kind: trace.SpanKindInternal,
		Attributes: []attribute.KeyValue{
			attribute.String("object.key", objectKey),
		},
	})
}

// TraceConsumerDelivery creates a span for one queue delivery. It is the
// root span of worker-side processing.
func (t *Tracer) TraceConsumerDelivery(ctx context.Context, queue, routingKey string) (context.Context, trace.Span) {
	return t.Start(ctx, "consumer.delivery", SpanOptions{
		Kind: trace.SpanKindConsumer,
		Attributes: []attribute.KeyValue{
			attribute.String("messaging.queue", queue),
			attribute.String("messaging.routing_key", routingKey),
		},
	})
}

// TraceLLMRequest creates a span for LLM API requests.
func (t *Tracer) TraceLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("llm.%s", provider), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		},
	})
}

// TraceEmbeddingBatch creates a span for one embedding batch request.
func (t *Tracer) TraceEmbeddingBatch(ctx context.Context, model string, size int) (context.Context, trace.Span) {
	return t.Start(ctx, "embedding.batch", SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("embedding.model", model),
			attribute.Int("embedding.batch_size", size),
		},
	})
}

// TraceNode creates a span for one agent graph node.
//
// Example:
//
//	ctx, span := tracer.TraceNode(ctx, "retriever")
//	defer span.End()
func (t *Tracer) TraceNode(ctx context.Context, node string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("node.%s", node), SpanOptions{
		Kind: trace.SpanKindInternal,
		Attributes: []attribute.KeyValue{
			attribute.String("node.name", node),
		},
	})
}

// TraceDatabaseQuery creates a span for database queries.
func (t *Tracer) TraceDatabaseQuery(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("db.%s", operation), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
		},
	})
}

// TraceHTTPRequest creates a span for HTTP requests.
func (t *Tracer) TraceHTTPRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("http.%s %s", method, path), SpanOptions{
		Kind: trace.SpanKindServer,
		Attributes: []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		},
	})
}

// InjectContext injects trace context into a carrier (e.g., message headers).
func (t *Tracer) InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func (t *Tracer) ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SpanFromContext returns the current span from the context.
// Returns a non-recording span if no span is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// attributeFromValue creates an attribute.KeyValue from a Go value.
func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// WithSpan is a helper that creates a span, executes a function, and ends the
// span. If the function returns an error, it's recorded on the span.
//
// Example:
//
//	err := observability.WithSpan(ctx, tracer, "reindex", func(ctx context.Context, span trace.Span) error {
//	    // Do work
//	    return nil
//	})
func WithSpan(ctx context.Context, tracer *Tracer, name string, fn func(context.Context, trace.Span) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	err := fn(ctx, span)
	if err != nil {
		tracer.RecordError(span, err)
	}
	return err
}

// GetTraceID returns the trace ID from the context as a string.
// Returns empty string if no trace is active.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// MapCarrier is a simple map-based carrier for context propagation through
// message headers.
type MapCarrier map[string]string

// Get returns the value for the given key.
func (m MapCarrier) Get(key string) string {
	return m[key]
}

// Set stores the key-value pair.
func (m MapCarrier) Set(key, value string) {
	m[key] = value
}

// Keys returns all keys in the carrier.
func (m MapCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
