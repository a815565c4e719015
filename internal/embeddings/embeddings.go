// Package embeddings provides interfaces and implementations for embedding providers.
package embeddings

import (
	"context"
)

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (more efficient).
	// The result is aligned with the input: result[i] embeds texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// Dimension returns the embedding dimension.
	Dimension() int

	// MaxBatchSize returns the maximum number of texts per batch.
	MaxBatchSize() int
}
