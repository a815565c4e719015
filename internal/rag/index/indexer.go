// Package index embeds document chunks and writes them to the vector store.
// Embedding runs in bounded batches; storage happens in a single atomic
// replace so a document is either fully indexed or not indexed at all.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/corpus/internal/embeddings"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/store"
	"github.com/haasonsaas/corpus/pkg/models"
)

// Config contains configuration for the indexer.
type Config struct {
	// BatchSize is the maximum number of chunks per embedding request,
	// additionally capped by the provider's own batch limit.
	// Default: 100
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig() *Config {
	return &Config{BatchSize: 100}
}

// Indexer turns chunk lists into stored vector records.
type Indexer struct {
	store    store.DocumentStore
	embedder embeddings.Provider
	config   *Config
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// New creates an indexer.
func New(docStore store.DocumentStore, embedder embeddings.Provider, cfg *Config) *Indexer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	return &Indexer{
		store:    docStore,
		embedder: embedder,
		config:   cfg,
		logger:   observability.NewLogger(observability.LogConfig{}),
	}
}

// WithLogger sets the logger.
func (ix *Indexer) WithLogger(logger *observability.Logger) *Indexer {
	if logger != nil {
		ix.logger = logger
	}
	return ix
}

// WithMetrics sets the metrics recorder.
func (ix *Indexer) WithMetrics(m *observability.Metrics) *Indexer {
	ix.metrics = m
	return ix
}

// Index stamps every chunk with the document identity, embeds the chunks in
// batches, and replaces the document's chunk set in one atomic store
// operation. The first embedding or store error aborts the whole call, so a
// failed run leaves no partial chunk set behind.
func (ix *Indexer) Index(ctx context.Context, documentID, filename string, chunks []*models.DocumentChunk) error {
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}

	for i, c := range chunks {
		c.DocumentID = documentID
		c.Index = i
		c.Metadata.DocumentID = documentID
		c.Metadata.Filename = filename
		c.Metadata.ChunkIndex = i
	}

	if err := ix.embedChunks(ctx, chunks); err != nil {
		return err
	}

	if err := ix.store.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	if ix.metrics != nil {
		text, tables := 0, 0
		for _, c := range chunks {
			if c.Metadata.ContentType == models.ContentTypeTable {
				tables++
			} else {
				text++
			}
		}
		ix.metrics.RecordChunksIndexed(string(models.ContentTypeText), text)
		ix.metrics.RecordChunksIndexed(string(models.ContentTypeTable), tables)
	}

	ix.logger.Info(ctx, "indexed document chunks",
		"document_id", documentID,
		"chunks", len(chunks))
	return nil
}

// Reindex deletes the document's existing chunks before indexing the new
// set. Reprocessing an already-ingested object goes through here so stale
// chunks never survive a retry.
func (ix *Indexer) Reindex(ctx context.Context, documentID, filename string, chunks []*models.DocumentChunk) error {
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}

	if err := ix.store.DeleteChunks(ctx, documentID); err != nil {
		return fmt.Errorf("delete existing chunks: %w", err)
	}
	return ix.Index(ctx, documentID, filename, chunks)
}

// embedChunks generates embeddings for chunks in batches. The batch size is
// the configured size capped by the provider's limit.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batchSize := ix.config.BatchSize
	if limit := ix.embedder.MaxBatchSize(); limit > 0 && limit < batchSize {
		batchSize = limit
	}

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Content
		}

		start := time.Now()
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ix.metrics != nil {
				ix.metrics.RecordEmbeddingRequest(ix.embedder.Name(), "error", time.Since(start).Seconds())
			}
			return fmt.Errorf("embed batch %d: %w", i/batchSize, err)
		}
		if ix.metrics != nil {
			ix.metrics.RecordEmbeddingRequest(ix.embedder.Name(), "success", time.Since(start).Seconds())
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch %d: got %d embeddings for %d chunks", i/batchSize, len(vectors), len(batch))
		}

		for j, chunk := range batch {
			chunk.Embedding = vectors[j]
		}
	}

	return nil
}
