package pgvector

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/corpus/internal/rag/store"
	"github.com/haasonsaas/corpus/pkg/models"
)

func TestValidateEmbeddingDimension(t *testing.T) {
	s := &Store{dimension: 3}

	if err := s.validateEmbedding([]float32{1, 2, 3}); err != nil {
		t.Fatalf("expected valid embedding, got %v", err)
	}
	if err := s.validateEmbedding([]float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if err := s.validateEmbedding(nil); err == nil {
		t.Fatal("expected empty embedding error")
	}
}

func TestValidateEmbeddingRejectsNonFinite(t *testing.T) {
	s := &Store{dimension: 2}

	nan := float32(0)
	nan = nan / nan
	if err := s.validateEmbedding([]float32{1, nan}); err == nil {
		t.Fatal("expected NaN rejection")
	}

	inf := float32(1e38)
	inf = inf * 10
	if err := s.validateEmbedding([]float32{inf, 1}); err == nil {
		t.Fatal("expected Inf rejection")
	}
}

func newMockStore(t *testing.T, dimension int) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, dimension: dimension}, mock
}

func TestCreateDocumentFillsDefaults(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), "report.pdf", "documents/abc.pdf", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{Filename: "report.pdf", Path: "documents/abc.pdf"}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if doc.ID == "" {
		t.Error("CreateDocument should assign an ID")
	}
	if doc.UploadedAt.IsZero() {
		t.Error("CreateDocument should set UploadedAt")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectQuery("SELECT id, filename, path, uploaded_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	doc, err := s.GetDocument(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc != nil {
		t.Errorf("GetDocument() = %+v, want nil", doc)
	}
}

func TestListDocumentsReturnsPage(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("SELECT id, filename, path, uploaded_at").
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "filename", "path", "uploaded_at"}).
			AddRow("d2", "b.pdf", "documents/b.pdf", time.Now()).
			AddRow("d1", "a.pdf", "documents/a.pdf", time.Now()))

	page, err := s.ListDocuments(context.Background(), &store.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if page.Total != 12 {
		t.Errorf("Total = %d, want 12", page.Total)
	}
	if len(page.Documents) != 2 {
		t.Fatalf("len(Documents) = %d, want 2", len(page.Documents))
	}
	if page.Documents[0].ID != "d2" {
		t.Errorf("first document = %s, want d2", page.Documents[0].ID)
	}
	if page.Limit != 2 || page.Offset != 4 {
		t.Errorf("page window = %d/%d, want 2/4", page.Limit, page.Offset)
	}
}

func TestReplaceChunksIsTransactional(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	prep := mock.ExpectPrepare("INSERT INTO document_chunks")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "doc-1", 0, "first", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "doc-1", 1, "second", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	chunks := []*models.DocumentChunk{
		{Index: 0, Content: "first", Embedding: []float32{1, 0, 0}},
		{Index: 1, Content: "second", Embedding: []float32{0, 1, 0}},
	}
	if err := s.ReplaceChunks(context.Background(), "doc-1", chunks); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	for i, chunk := range chunks {
		if chunk.ID == "" {
			t.Errorf("chunk %d missing assigned ID", i)
		}
		if chunk.DocumentID != "doc-1" {
			t.Errorf("chunk %d DocumentID = %q", i, chunk.DocumentID)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceChunksRejectsBadEmbeddingBeforeWriting(t *testing.T) {
	s, mock := newMockStore(t, 3)

	chunks := []*models.DocumentChunk{
		{Index: 0, Content: "first", Embedding: []float32{1, 0}},
	}
	err := s.ReplaceChunks(context.Background(), "doc-1", chunks)
	if err == nil {
		t.Fatal("ReplaceChunks() expected dimension error")
	}
	if !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("error = %v, want dimension mismatch", err)
	}

	// No SQL should have run
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected SQL: %v", err)
	}
}

func TestSearchScansResults(t *testing.T) {
	s, mock := newMockStore(t, 3)

	rows := sqlmock.NewRows([]string{"id", "document_id", "chunk_index", "content", "metadata", "created_at", "similarity"}).
		AddRow("c1", "d1", 0, "closest", `{"content_type":"text","chunk_index":0}`, time.Now(), 0.93).
		AddRow("c2", "d1", 3, "next", `{"content_type":"table","is_atomic":true,"chunk_index":3}`, time.Now(), 0.81)

	mock.ExpectQuery("FROM document_chunks c").
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, &store.SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Chunk.Content != "closest" || results[0].Score < results[1].Score {
		t.Errorf("results out of order: %+v", results)
	}
	if results[1].Chunk.Metadata.ContentType != models.ContentTypeTable {
		t.Errorf("metadata not decoded: %+v", results[1].Chunk.Metadata)
	}
	if !results[1].Chunk.Metadata.IsAtomic {
		t.Error("table chunk should keep is_atomic")
	}
}

func TestSearchAppliesThresholdArgument(t *testing.T) {
	s, mock := newMockStore(t, 3)

	mock.ExpectQuery("FROM document_chunks c").
		WithArgs(sqlmock.AnyArg(), 0.7, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "chunk_index", "content", "metadata", "created_at", "similarity"}))

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, &store.SearchOptions{Threshold: 0.7})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSearchRejectsBadEmbedding(t *testing.T) {
	s, _ := newMockStore(t, 3)

	if _, err := s.Search(context.Background(), []float32{1}, nil); err == nil {
		t.Fatal("Search() expected dimension error")
	}
}

func TestCheckDimension(t *testing.T) {
	tests := []struct {
		name    string
		typmod  int
		wantErr bool
	}{
		{name: "matching", typmod: 1536, wantErr: false},
		{name: "mismatch", typmod: 768, wantErr: true},
		{name: "no typmod recorded", typmod: -1, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t, 1536)
			mock.ExpectQuery("SELECT a.atttypmod").
				WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(tt.typmod))

			err := s.CheckDimension(context.Background())
			if tt.wantErr && err == nil {
				t.Error("CheckDimension() error = nil, want mismatch")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("CheckDimension() error = %v, want nil", err)
			}
		})
	}
}

func TestStats(t *testing.T) {
	s, mock := newMockStore(t, 1536)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(61))

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDocuments != 4 || stats.TotalChunks != 61 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.EmbeddingDimension != 1536 {
		t.Errorf("EmbeddingDimension = %d, want 1536", stats.EmbeddingDimension)
	}
}
