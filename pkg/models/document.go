// Package models defines the core data types for corpus.
package models

import (
	"time"
)

// Document is the parent record for an ingested PDF. It owns its chunks:
// deleting a document cascades to every chunk indexed under it.
type Document struct {
	// ID is the unique identifier for the document.
	ID string `json:"id"`

	// Filename is the original upload filename.
	Filename string `json:"filename"`

	// Path is the object-store key the raw bytes live under
	// (e.g. "documents/3f2a….pdf").
	Path string `json:"path"`

	// UploadedAt is when the document row was created.
	UploadedAt time.Time `json:"uploaded_at"`
}

// ContentType classifies what a chunk holds.
type ContentType string

const (
	// ContentTypeText is ordinary flowing text.
	ContentTypeText ContentType = "text"

	// ContentTypeTable is a Markdown-rendered table. Table chunks are
	// atomic: they are never split or merged.
	ContentTypeTable ContentType = "table"
)

// DocumentChunk is the unit of retrieval: a bounded piece of document text
// with its embedding and provenance metadata.
type DocumentChunk struct {
	// ID is the unique identifier for this chunk.
	ID string `json:"id"`

	// DocumentID links this chunk to its parent document.
	DocumentID string `json:"document_id"`

	// Index is the position of this chunk within the document (0-based).
	// Indices form a contiguous prefix per document.
	Index int `json:"chunk_index"`

	// Content is the text content of this chunk.
	Content string `json:"content"`

	// Embedding is the vector embedding for similarity search.
	Embedding []float32 `json:"-"`

	// Metadata carries provenance and structure flags.
	Metadata ChunkMetadata `json:"metadata"`

	// CreatedAt is when the chunk was inserted.
	CreatedAt time.Time `json:"created_at"`
}

// ChunkMetadata is the flat metadata map attached to every vector record.
// Chunks reference their parent only through DocumentID.
type ChunkMetadata struct {
	// ContentType is "text" or "table".
	ContentType ContentType `json:"content_type"`

	// IsAtomic marks chunks that must never be split (tables).
	IsAtomic bool `json:"is_atomic"`

	// Page is the 1-based source page.
	Page int `json:"page,omitempty"`

	// TotalPages is the page count of the source document.
	TotalPages int `json:"total_pages,omitempty"`

	// Filename is the parent document's original filename.
	Filename string `json:"filename,omitempty"`

	// DocumentID mirrors the parent document id into the vector record.
	DocumentID string `json:"document_id,omitempty"`

	// ChunkIndex mirrors the ordinal index into the vector record.
	ChunkIndex int `json:"chunk_index"`

	// StartIndex is the offset of the chunk's first character within its
	// source block. Tables carry 0. Nil when the producer did not track it.
	StartIndex *int `json:"start_index,omitempty"`

	// MergedSmallChunk marks a chunk that absorbed an undersized successor.
	MergedSmallChunk bool `json:"merged_small_chunk,omitempty"`

	// TableContext holds up to 150 characters of the text immediately
	// above a table, preserving the caption the table refers to.
	TableContext string `json:"context,omitempty"`
}

// SearchResult is a single similarity-search hit.
type SearchResult struct {
	// Chunk is the matching chunk.
	Chunk *DocumentChunk `json:"chunk"`

	// Score is the cosine similarity in [0,1], higher is closer.
	Score float32 `json:"score"`
}

// DocumentPage is one page of a document listing.
type DocumentPage struct {
	// Documents are the page's rows, newest first.
	Documents []*Document `json:"documents"`

	// Total is the full row count ignoring pagination.
	Total int `json:"total"`

	// Limit and Offset echo the requested window.
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
