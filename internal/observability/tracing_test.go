package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTracer(t *testing.T) {
	tests := []struct {
		name   string
		config TraceConfig
	}{
		{
			name: "with endpoint",
			config: TraceConfig{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
				Endpoint:       "localhost:4317",
				EnableInsecure: true,
			},
		},
		{
			name: "without endpoint (no-op)",
			config: TraceConfig{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
		},
		{
			name: "with sampling",
			config: TraceConfig{
				ServiceName:  "test-service",
				SamplingRate: 0.5,
				Endpoint:     "localhost:4317",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, shutdown := NewTracer(tt.config)
			defer func() { _ = shutdown(context.Background()) }()

			if tracer == nil {
				t.Fatal("NewTracer() returned nil")
			}
			if tracer.tracer == nil {
				t.Error("tracer.tracer is nil")
			}
		})
	}
}

func TestTracerStart(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{
		ServiceName: "test-service",
	})
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := tracer.Start(context.Background(), "test-operation", SpanOptions{
		Kind: trace.SpanKindServer,
		Attributes: []attribute.KeyValue{
			attribute.String("key1", "value1"),
			attribute.Int("key2", 42),
		},
	})
	defer span.End()

	if span == nil {
		t.Fatal("Start() returned nil span")
	}
	if trace.SpanFromContext(ctx) == nil {
		t.Error("Expected span in context")
	}
}

func TestTracerRecordError(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test-service"})
	defer func() { _ = shutdown(context.Background()) }()

	_, span := tracer.Start(context.Background(), "test-operation")
	defer span.End()

	// Should not panic on either path
	tracer.RecordError(span, errors.New("boom"))
	tracer.RecordError(span, nil)
}

func TestTracerSetAttributes(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test-service"})
	defer func() { _ = shutdown(context.Background()) }()

	_, span := tracer.Start(context.Background(), "test-operation")
	defer span.End()

	// Mixed value types plus a malformed (non-string) key
	tracer.SetAttributes(span,
		"document_id", "doc-1",
		"chunk_count", 7,
		"atomic", true,
		"score", 0.93,
		42, "ignored",
	)
}

func TestDomainSpanHelpers(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test-service"})
	defer func() { _ = shutdown(context.Background()) }()

	ctx := context.Background()

	_, span := tracer.TracePipelineRun(ctx, "documents/abc.pdf")
	span.End()

	_, span = tracer.TraceConsumerDelivery(ctx, "corpus.pdf-events", "documents.created")
	span.End()

	_, span = tracer.TraceLLMRequest(ctx, "openai", "gpt-4o-mini")
	span.End()

	_, span = tracer.TraceEmbeddingBatch(ctx, "text-embedding-3-small", 100)
	span.End()

	_, span = tracer.TraceNode(ctx, "retriever")
	span.End()

	_, span = tracer.TraceDatabaseQuery(ctx, "select", "document_chunks")
	span.End()

	_, span = tracer.TraceHTTPRequest(ctx, "POST", "/api/documents")
	span.End()
}

func TestWithSpan(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test-service"})
	defer func() { _ = shutdown(context.Background()) }()

	called := false
	err := WithSpan(context.Background(), tracer, "operation", func(ctx context.Context, span trace.Span) error {
		called = true
		return nil
	})
	if err != nil {
		t.Errorf("WithSpan() error = %v, want nil", err)
	}
	if !called {
		t.Error("WithSpan() did not invoke the function")
	}

	wantErr := errors.New("boom")
	err = WithSpan(context.Background(), tracer, "operation", func(ctx context.Context, span trace.Span) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("WithSpan() error = %v, want %v", err, wantErr)
	}
}

func TestGetTraceID(t *testing.T) {
	// Without an active recording span there is no valid trace ID
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID(empty ctx) = %q, want empty", id)
	}
}

func TestMapCarrier(t *testing.T) {
	carrier := MapCarrier{}
	carrier.Set("traceparent", "00-abc-def-01")

	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get() = %q", got)
	}
	if got := carrier.Get("absent"); got != "" {
		t.Errorf("Get(absent) = %q, want empty", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("Keys() = %v", keys)
	}
}
