// Package main provides the CLI entry point for corpus, a PDF knowledge
// base with retrieval-grounded chat.
//
// # Basic Usage
//
// Start the HTTP API:
//
//	corpus serve --config corpus.yaml
//
// Start the ingestion worker:
//
//	corpus worker --config corpus.yaml
//
// Manage database migrations:
//
//	corpus migrate up
//	corpus migrate status
//
// Replay a stored object through the ingestion pipeline:
//
//	corpus replay documents/3f2a7c1e-....pdf
//
// # Environment Variables
//
//   - CORPUS_CONFIG: Path to configuration file (default: corpus.yaml)
//   - OPENAI_API_KEY: OpenAI API key, referenced from the YAML via ${OPENAI_API_KEY}
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/storage"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "corpus.yaml"

func main() {
	// .env keeps secrets out of the YAML; absence is not an error.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "corpus",
		Short: "Corpus - private PDF knowledge base with retrieval chat",
		Long: `Corpus ingests PDF documents into a vector index and answers
questions about them through a guarded retrieval chat agent.

The serve command exposes the HTTP API (uploads, documents, chat);
the worker command consumes bucket events and indexes documents.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildWorkerCmd(),
		buildMigrateCmd(),
		buildReplayCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" || path == defaultConfigPath {
		if env := strings.TrimSpace(os.Getenv("CORPUS_CONFIG")); env != "" {
			return env
		}
		return defaultConfigPath
	}
	return path
}

// loadRuntime loads the config and builds the process logger from it.
func loadRuntime(configPath string) (*config.Config, *observability.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return cfg, logger, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return storage.Open(ctx, storage.Options{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func newTracer(cfg *config.Config) (*observability.Tracer, func(context.Context) error) {
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:    "corpus",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
}
