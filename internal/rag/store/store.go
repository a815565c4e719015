// Package store provides document storage interfaces for the retrieval
// system.
package store

import (
	"context"

	"github.com/haasonsaas/corpus/pkg/models"
)

// DocumentStore defines the interface for document and chunk storage.
// Implementations handle persistence, indexing, and similarity retrieval.
type DocumentStore interface {
	// CreateDocument inserts the parent row for an uploaded document.
	// A zero ID or UploadedAt is filled in before the insert.
	CreateDocument(ctx context.Context, doc *models.Document) error

	// GetDocument retrieves a document by ID.
	// Returns nil when no document exists.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// ListDocuments returns a page of documents ordered newest first.
	ListDocuments(ctx context.Context, opts *ListOptions) (*models.DocumentPage, error)

	// DeleteDocument removes a document; its chunks go with it.
	DeleteDocument(ctx context.Context, id string) error

	// ReplaceChunks atomically swaps the chunk set of a document.
	// Existing chunks are deleted and the given ones inserted in a single
	// transaction, so readers never observe a partial index.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*models.DocumentChunk) error

	// DeleteChunks removes all chunks of a document, keeping the parent row.
	DeleteChunks(ctx context.Context, documentID string) error

	// ChunksByDocument retrieves all chunks for a document ordered by index.
	ChunksByDocument(ctx context.Context, documentID string) ([]*models.DocumentChunk, error)

	// Search performs cosine similarity search over chunks.
	Search(ctx context.Context, embedding []float32, opts *SearchOptions) ([]models.SearchResult, error)

	// Stats returns statistics about the store.
	Stats(ctx context.Context) (*Stats, error)

	// CheckDimension verifies the embedding column matches the configured
	// dimension.
	CheckDimension(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ListOptions configures document listing.
type ListOptions struct {
	// Limit is the maximum number of documents to return.
	// Default: 100
	Limit int

	// Offset is the number of documents to skip.
	Offset int
}

// SearchOptions provides additional search configuration.
type SearchOptions struct {
	// Limit is the maximum results to return.
	// Default: 10
	Limit int

	// Threshold is the minimum cosine similarity. Zero disables the filter.
	Threshold float64
}

// Stats contains statistics about the document store.
type Stats struct {
	// TotalDocuments is the number of stored documents.
	TotalDocuments int64 `json:"total_documents"`

	// TotalChunks is the number of stored chunks.
	TotalChunks int64 `json:"total_chunks"`

	// EmbeddingDimension is the configured embedding dimension.
	EmbeddingDimension int `json:"embedding_dimension"`
}
