// Package pgvector provides a document store implementation using PostgreSQL
// with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	pgv "github.com/pgvector/pgvector-go"

	"github.com/haasonsaas/corpus/internal/rag/store"
	"github.com/haasonsaas/corpus/internal/storage"
	"github.com/haasonsaas/corpus/pkg/models"
)

// Store implements store.DocumentStore using pgvector.
type Store struct {
	db        *sql.DB
	dimension int
	ownsDB    bool // whether this store owns the db connection
}

// Config contains configuration for the pgvector store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	// If empty, DB must be provided.
	DSN string

	// DB is an existing database connection to reuse.
	// If provided, DSN is ignored and the store will not close the connection.
	DB *sql.DB

	// Dimension is the embedding dimension (e.g., 1536 for text-embedding-3-small).
	Dimension int

	// RunMigrations controls whether to run migrations on startup.
	RunMigrations bool
}

// New creates a new pgvector document store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536 // Default to OpenAI text-embedding-3-small
	}

	var db *sql.DB
	var ownsDB bool
	var err error

	if cfg.DB != nil {
		// Reuse existing connection
		db = cfg.DB
		ownsDB = false
	} else if cfg.DSN != "" {
		db, err = storage.Open(context.Background(), storage.Options{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		ownsDB = true
	} else {
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	s := &Store{
		db:        db,
		dimension: cfg.Dimension,
		ownsDB:    ownsDB,
	}

	if cfg.RunMigrations {
		if err := storage.Migrate(context.Background(), db); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, err
		}
	}

	return s, nil
}

// CreateDocument inserts the parent row for an uploaded document.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, path, uploaded_at)
		VALUES ($1, $2, $3, $4)
	`, doc.ID, doc.Filename, doc.Path, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID. Returns nil when no row exists.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, path, uploaded_at
		FROM documents
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.Filename, &doc.Path, &doc.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}

	return &doc, nil
}

// ListDocuments returns a page of documents ordered newest first.
func (s *Store) ListDocuments(ctx context.Context, opts *store.ListOptions) (*models.DocumentPage, error) {
	if opts == nil {
		opts = &store.ListOptions{}
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, path, uploaded_at
		FROM documents
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Path, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents rows: %w", err)
	}

	return &models.DocumentPage{
		Documents: docs,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}, nil
}

// DeleteDocument removes a document; chunks cascade through the foreign key.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ReplaceChunks atomically swaps the chunk set of a document. Existing chunks
// are deleted and the given ones inserted in a single transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []*models.DocumentChunk) error {
	for i, chunk := range chunks {
		if err := s.validateEmbedding(chunk.Embedding); err != nil {
			return fmt.Errorf("validate embedding for chunk %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete existing chunks: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`)
		if err != nil {
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			if chunk.ID == "" {
				chunk.ID = uuid.New().String()
			}
			if chunk.CreatedAt.IsZero() {
				chunk.CreatedAt = time.Now()
			}
			chunk.DocumentID = documentID

			metadata, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshal chunk metadata: %w", err)
			}

			_, err = stmt.ExecContext(ctx,
				chunk.ID, documentID, chunk.Index, chunk.Content,
				pgv.NewVector(chunk.Embedding), string(metadata), chunk.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteChunks removes all chunks of a document, keeping the parent row.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// ChunksByDocument retrieves all chunks for a document ordered by index.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]*models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, embedding, metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.DocumentChunk
	for rows.Next() {
		var chunk models.DocumentChunk
		var metadataJSON string
		var embedding pgv.Vector

		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content,
			&embedding, &metadataJSON, &chunk.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		chunk.Embedding = embedding.Slice()

		chunks = append(chunks, &chunk)
	}

	return chunks, rows.Err()
}

// Search performs cosine similarity search over chunks. Results are ordered
// by ascending distance, so the closest chunk comes first.
func (s *Store) Search(ctx context.Context, embedding []float32, opts *store.SearchOptions) ([]models.SearchResult, error) {
	if opts == nil {
		opts = &store.SearchOptions{}
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if err := s.validateEmbedding(embedding); err != nil {
		return nil, err
	}

	queryVec := pgv.NewVector(embedding)

	query := `
		SELECT
			c.id, c.document_id, c.chunk_index, c.content, c.metadata, c.created_at,
			1 - (c.embedding <=> $1::vector) AS similarity
		FROM document_chunks c
	`
	args := []any{queryVec}
	argNum := 2

	if opts.Threshold > 0 {
		query += fmt.Sprintf(" WHERE 1 - (c.embedding <=> $1::vector) >= $%d", argNum)
		args = append(args, opts.Threshold)
		argNum++
	}

	query += " ORDER BY c.embedding <=> $1::vector ASC"
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var chunk models.DocumentChunk
		var metadataJSON string
		var similarity float64

		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content,
			&metadataJSON, &chunk.CreatedAt, &similarity)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}

		if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}

		results = append(results, models.SearchResult{
			Chunk: &chunk,
			Score: float32(similarity),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}

	return results, nil
}

// Stats returns statistics about the store.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{
		EmbeddingDimension: s.dimension,
	}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	return stats, nil
}

// CheckDimension verifies the embedding column was created with the
// configured dimension. A mismatch means the index and the embedding model
// disagree, which would poison every stored vector.
func (s *Store) CheckDimension(ctx context.Context) error {
	var typmod int
	err := s.db.QueryRowContext(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class t ON a.attrelid = t.oid
		WHERE t.relname = 'document_chunks' AND a.attname = 'embedding'
	`).Scan(&typmod)
	if err == sql.ErrNoRows {
		return fmt.Errorf("document_chunks.embedding column not found; run migrations")
	}
	if err != nil {
		return fmt.Errorf("query embedding column: %w", err)
	}

	// pgvector stores the declared dimension directly in atttypmod
	if typmod > 0 && typmod != s.dimension {
		return fmt.Errorf("embedding column dimension is %d, configured model produces %d", typmod, s.dimension)
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) validateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	if s.dimension > 0 && len(embedding) != s.dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.dimension)
	}
	for _, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding contains invalid values")
		}
	}
	return nil
}
