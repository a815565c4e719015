package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Document ingestion outcomes and per-stage latency
//   - Chunk counts by content type
//   - Embedding and LLM request performance
//   - Guard decisions on both sides of the agent
//   - Queue consumer outcomes (processed, skipped, rejected)
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordConsumerEvent("processed")
//	metrics.RecordStage("extract", time.Since(start).Seconds())
type Metrics struct {
	// DocumentCounter tracks ingestion pipeline runs.
	// Labels: status (success|error)
	DocumentCounter *prometheus.CounterVec

	// StageDuration measures pipeline stage latency in seconds.
	// Labels: stage (download|extract|chunk|embed|store)
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	StageDuration *prometheus.HistogramVec

	// ChunkCounter counts chunks written to the index.
	// Labels: content_type (text|table)
	ChunkCounter *prometheus.CounterVec

	// EmbeddingRequestDuration measures embedding batch latency in seconds.
	// Labels: model
	EmbeddingRequestDuration *prometheus.HistogramVec

	// EmbeddingRequestCounter counts embedding batches.
	// Labels: model, status (success|error)
	EmbeddingRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// GuardDecisionCounter counts validator outcomes.
	// Labels: guard (input|output), decision (allowed|flagged|error)
	GuardDecisionCounter *prometheus.CounterVec

	// NodeDuration measures agent node latency in seconds.
	// Labels: node
	NodeDuration *prometheus.HistogramVec

	// RetrievalDuration measures similarity search latency across all
	// reformulations of one query.
	RetrievalDuration prometheus.Histogram

	// ConsumerEventCounter counts queue deliveries by outcome.
	// Labels: outcome (processed|skipped|rejected)
	ConsumerEventCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (pipeline|agent|consumer|api|store), error_type
	ErrorCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update|delete), table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are registered with Prometheus's default registry and are
// served by the metrics endpoint.
func NewMetrics() *Metrics {
	return &Metrics{
		DocumentCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_documents_processed_total",
				Help: "Total number of ingestion pipeline runs by status",
			},
			[]string{"status"},
		),

		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_pipeline_stage_duration_seconds",
				Help:    "Duration of ingestion pipeline stages in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		ChunkCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_chunks_indexed_total",
				Help: "Total number of chunks written to the index by content type",
			},
			[]string{"content_type"},
		),

		EmbeddingRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_embedding_request_duration_seconds",
				Help:    "Duration of embedding batch requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		EmbeddingRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_embedding_requests_total",
				Help: "Total number of embedding batch requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		GuardDecisionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_guard_decisions_total",
				Help: "Total number of validator decisions by guard and outcome",
			},
			[]string{"guard", "decision"},
		),

		NodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_agent_node_duration_seconds",
				Help:    "Duration of agent graph nodes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"node"},
		),

		RetrievalDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "corpus_retrieval_duration_seconds",
				Help:    "Duration of multi-query similarity retrieval in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),

		ConsumerEventCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_consumer_events_total",
				Help: "Total number of queue deliveries by outcome",
			},
			[]string{"outcome"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// RecordDocumentProcessed records the outcome of one ingestion pipeline run.
func (m *Metrics) RecordDocumentProcessed(status string) {
	m.DocumentCounter.WithLabelValues(status).Inc()
}

// RecordStage records the latency of one pipeline stage.
//
// Example:
//
//	start := time.Now()
//	// ... extract pages ...
//	metrics.RecordStage("extract", time.Since(start).Seconds())
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordChunksIndexed adds to the chunk counter for a content type.
func (m *Metrics) RecordChunksIndexed(contentType string, count int) {
	if count > 0 {
		m.ChunkCounter.WithLabelValues(contentType).Add(float64(count))
	}
}

// RecordEmbeddingRequest records metrics for one embedding batch.
func (m *Metrics) RecordEmbeddingRequest(model, status string, durationSeconds float64) {
	m.EmbeddingRequestCounter.WithLabelValues(model, status).Inc()
	m.EmbeddingRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("openai", "gpt-4o-mini", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordGuardDecision increments the guard decision counter.
//
// Example:
//
//	metrics.RecordGuardDecision("input", "flagged")
func (m *Metrics) RecordGuardDecision(guard, decision string) {
	m.GuardDecisionCounter.WithLabelValues(guard, decision).Inc()
}

// RecordNode records the latency of one agent graph node.
func (m *Metrics) RecordNode(node string, durationSeconds float64) {
	m.NodeDuration.WithLabelValues(node).Observe(durationSeconds)
}

// RecordRetrieval records the latency of one multi-query retrieval.
func (m *Metrics) RecordRetrieval(durationSeconds float64) {
	m.RetrievalDuration.Observe(durationSeconds)
}

// RecordConsumerEvent increments the consumer outcome counter.
//
// Example:
//
//	metrics.RecordConsumerEvent("quarantined")
func (m *Metrics) RecordConsumerEvent(outcome string) {
	m.ConsumerEventCounter.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("pipeline", "extraction")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a database query.
//
// Example:
//
//	start := time.Now()
//	// ... execute database query ...
//	metrics.RecordDatabaseQuery("select", "document_chunks", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
