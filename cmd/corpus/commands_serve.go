package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/corpus/internal/agent"
	"github.com/haasonsaas/corpus/internal/api"
	"github.com/haasonsaas/corpus/internal/chat"
	embopenai "github.com/haasonsaas/corpus/internal/embeddings/openai"
	"github.com/haasonsaas/corpus/internal/guard"
	llmopenai "github.com/haasonsaas/corpus/internal/llm/openai"
	"github.com/haasonsaas/corpus/internal/objstore"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/retriever"
	"github.com/haasonsaas/corpus/internal/rag/store/pgvector"
	"github.com/haasonsaas/corpus/internal/storage"
)

// buildServeCmd creates the "serve" command that starts the HTTP API.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the corpus HTTP API",
		Long: `Start the HTTP API server.

The server will:
1. Load configuration and run pending database migrations
2. Verify the vector column dimension matches the configuration
3. Ensure the object-store bucket exists
4. Serve document upload/management, chat and health endpoints

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  corpus serve

  # Start with custom config
  corpus serve --config /etc/corpus/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	logger = logger.WithFields("component", "api")
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

	chatStore, err := chat.New(chat.Config{DB: db, HistoryLimit: cfg.Chat.MessageLimit})
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}

	llmProvider, err := llmopenai.New(llmopenai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
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

	inputGuard := guard.NewInputGuard(cfg.Guards, llmProvider).
		WithLogger(logger).WithMetrics(metrics)
	outputGuard := guard.NewOutputGuard(cfg.Guards).
		WithLogger(logger).WithMetrics(metrics)
	contexts := retriever.New(docStore, embedder, nil).WithLogger(logger)

	graph := agent.New(chatStore, inputGuard, outputGuard, contexts, llmProvider,
		&agent.Config{HistoryLimit: cfg.Chat.MessageLimit}).
		WithLogger(logger).WithMetrics(metrics).WithTracer(tracer)

	server, err := api.New(cfg.Server, api.Deps{
		Documents: docStore,
		Objects:   objects,
		Agent:     graph,
		Chat:      chatStore,
		DB:        db,
	})
	if err != nil {
		return err
	}
	server = server.WithLogger(logger).WithMetrics(metrics)

	logger.Info(ctx, "configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"llm_model", cfg.LLM.Model,
		"embedding_model", cfg.Embedding.Model,
		"embedding_dimension", cfg.Embedding.Dimension,
	)

	return server.Run(ctx)
}
