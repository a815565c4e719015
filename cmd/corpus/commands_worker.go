package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/corpus/internal/broker"
	"github.com/haasonsaas/corpus/internal/config"
	embopenai "github.com/haasonsaas/corpus/internal/embeddings/openai"
	"github.com/haasonsaas/corpus/internal/objstore"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/chunker"
	"github.com/haasonsaas/corpus/internal/rag/extract"
	"github.com/haasonsaas/corpus/internal/rag/index"
	"github.com/haasonsaas/corpus/internal/rag/pipeline"
	"github.com/haasonsaas/corpus/internal/rag/store/pgvector"
	"github.com/haasonsaas/corpus/internal/storage"
)

// buildWorkerCmd creates the "worker" command that consumes bucket events.
func buildWorkerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start the ingestion worker",
		Long: `Start the AMQP consumer that indexes uploaded documents.

The worker will:
1. Load configuration and run pending database migrations
2. Verify the vector column dimension matches the configuration
3. Bind the event queue and consume object-created events one at a time
4. Extract, chunk, embed and index each PDF

Metrics are exposed on a standalone listener. Graceful shutdown drains
the delivery in flight.`,
		Example: `  # Start with default config
  corpus worker

  # Start with custom config
  corpus worker --config /etc/corpus/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runWorker(ctx context.Context, configPath string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	logger = logger.WithFields("component", "worker")
	metrics := observability.NewMetrics()
	tracer, stopTracer := newTracer(cfg)
	defer func() {
		if err := stopTracer(context.Background()); err != nil {
			logger.Warn(context.Background(), "tracer shutdown", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	docStore, err := pgvector.New(pgvector.Config{DB: db, Dimension: cfg.Embedding.Dimension})
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	if err := docStore.CheckDimension(ctx); err != nil {
		return err
	}

	objects, err := objstore.New(cfg.ObjectStore)
	if err != nil {
		return err
	}
	objects = objects.WithLogger(logger)
	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}

	embedder, err := embopenai.New(embopenai.Config{
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	extractor := extract.New(logger)
	splitter := chunker.NewSplitter(chunker.Config{
		ChunkSize:              cfg.Chunking.ChunkSize,
		ChunkOverlap:           cfg.Chunking.ChunkOverlap,
		MinStandaloneChunkSize: cfg.Chunking.MinStandaloneChunkSize,
	})
	indexer := index.New(docStore, embedder, &index.Config{BatchSize: cfg.Embedding.BatchSize}).
		WithLogger(logger).WithMetrics(metrics)
	pipe := pipeline.New(objects, extractor, splitter, indexer, docStore).
		WithLogger(logger).WithMetrics(metrics).WithTracer(tracer)

	consumer, err := broker.New(cfg.Broker, pipe)
	if err != nil {
		return err
	}
	consumer = consumer.WithLogger(logger).WithMetrics(metrics).WithTracer(tracer)

	stopMetrics := startMetricsListener(cfg, logger)
	defer stopMetrics()

	logger.Info(ctx, "worker configured",
		"queue", cfg.Broker.Queue,
		"embedding_model", cfg.Embedding.Model,
		"chunk_size", cfg.Chunking.ChunkSize,
	)

	return consumer.RunWithReconnect(ctx, broker.DefaultReconnectConfig())
}

// startMetricsListener serves /metrics and /healthz on the metrics port.
// The returned function stops the listener.
func startMetricsListener(cfg *config.Config, logger *observability.Logger) func() {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "metrics listener", "error", err)
		}
	}()
	logger.Info(context.Background(), "metrics listener started", "addr", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(context.Background(), "metrics listener shutdown", "error", err)
		}
	}
}
