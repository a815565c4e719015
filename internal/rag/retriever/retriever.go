// Package retriever runs similarity searches for reformulated query
// statements and merges the results into a deduplicated context list.
package retriever

import (
	"context"
	"strings"

	"github.com/haasonsaas/corpus/internal/embeddings"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/store"
)

// Config contains configuration for the retriever.
type Config struct {
	// TopK is the number of chunks fetched per statement.
	// Default: 3
	TopK int `yaml:"top_k"`

	// Threshold is the minimum cosine similarity for a chunk to count as
	// a match. Zero disables the filter.
	Threshold float64 `yaml:"threshold"`
}

// DefaultConfig returns the default retriever configuration.
func DefaultConfig() *Config {
	return &Config{TopK: 3}
}

// Retriever fetches relevant chunk texts for a set of query statements.
type Retriever struct {
	store    store.DocumentStore
	embedder embeddings.Provider
	config   *Config
	logger   *observability.Logger
}

// New creates a retriever.
func New(docStore store.DocumentStore, embedder embeddings.Provider, cfg *Config) *Retriever {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}

	return &Retriever{
		store:    docStore,
		embedder: embedder,
		config:   cfg,
		logger:   observability.NewLogger(observability.LogConfig{}),
	}
}

// WithLogger sets the logger.
func (r *Retriever) WithLogger(logger *observability.Logger) *Retriever {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Retrieve runs a top-K similarity search per statement and merges the hits
// in first-seen order, deduplicated by chunk ID. A statement whose search
// fails contributes nothing; retrieval itself never fails, so an empty
// result is the worst outcome the caller sees.
func (r *Retriever) Retrieve(ctx context.Context, statements []string) []string {
	queries := make([]string, 0, len(statements))
	for _, s := range statements {
		if strings.TrimSpace(s) != "" {
			queries = append(queries, s)
		}
	}
	if len(queries) == 0 {
		return nil
	}

	vectors, err := r.embedder.EmbedBatch(ctx, queries)
	if err != nil {
		r.logger.Warn(ctx, "statement embedding failed",
			"statements", len(queries),
			"error", err)
		return nil
	}
	if len(vectors) != len(queries) {
		r.logger.Warn(ctx, "statement embedding count mismatch",
			"statements", len(queries),
			"embeddings", len(vectors))
		return nil
	}

	seen := make(map[string]struct{})
	var merged []string
	for i, vec := range vectors {
		results, err := r.store.Search(ctx, vec, &store.SearchOptions{
			Limit:     r.config.TopK,
			Threshold: r.config.Threshold,
		})
		if err != nil {
			r.logger.Warn(ctx, "similarity search failed",
				"statement_index", i,
				"error", err)
			continue
		}

		for _, res := range results {
			key := res.Chunk.ID
			if key == "" {
				key = res.Chunk.Content
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, res.Chunk.Content)
		}
	}

	r.logger.Debug(ctx, "retrieved context chunks",
		"statements", len(queries),
		"chunks", len(merged))
	return merged
}
