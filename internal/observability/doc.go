// Package observability provides monitoring and debugging capabilities for
// corpus through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Document ingestion outcomes and per-stage latency
//   - Chunk counts by content type
//   - Embedding and LLM request latency and token usage
//   - Guard decisions and agent node performance
//   - Queue consumer outcomes
//   - HTTP and database query performance
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... run pipeline stage ...
//	metrics.RecordStage("extract", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on slog with JSON output for production. Request, session,
// user, and document IDs are pulled from the context so every record carries
// its correlation fields. Secrets matching the redaction patterns are replaced
// with "[REDACTED]" before they reach the handler.
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddDocumentID(ctx, doc.ID)
//	logger.Info(ctx, "Document indexed", "chunks", n)
//
// # Tracing
//
// Tracing uses OpenTelemetry with an OTLP gRPC exporter. When no collector
// endpoint is configured the tracer is a no-op, so instrumentation can stay in
// place in every environment. Domain helpers create consistently named spans
// for pipeline runs, queue deliveries, LLM calls, and database queries, and
// MapCarrier propagates trace context through message headers.
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "corpus",
//	    Endpoint:    cfg.Tracing.Endpoint,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TracePipelineRun(ctx, objectKey)
//	defer span.End()
package observability
