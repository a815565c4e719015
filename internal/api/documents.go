package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/store"
	"github.com/haasonsaas/corpus/pkg/models"
)

// multipartOverhead is the allowance for form framing on top of the
// configured file size cap.
const multipartOverhead = 1 << 20

var pdfMagic = []byte("%PDF")

// handleUploadDocument accepts a multipart PDF, stores the bytes in the
// object store under "<folder>/<id>.pdf" and records the document row
// under the same id. Indexing happens asynchronously when the bucket
// notification reaches the worker.
func (s *Server) handleUploadDocument(c *gin.Context) {
	ctx := c.Request.Context()
	maxBytes := s.maxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "file_too_large",
				"message":    "file exceeds the upload size limit",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "no_file",
			"message":    "multipart field \"file\" is required",
		})
		return
	}
	defer file.Close()

	if !strings.EqualFold(path.Ext(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_file_type",
			"message":    "only PDF files are accepted",
		})
		return
	}
	if header.Size > maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "file_too_large",
			"message":    "file exceeds the upload size limit",
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_file",
			"message":    "could not read the uploaded file",
		})
		return
	}
	if int64(len(data)) > maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "file_too_large",
			"message":    "file exceeds the upload size limit",
		})
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_pdf",
			"message":    "file does not look like a PDF",
		})
		return
	}

	// The object key carries the document id, so the worker can link the
	// bucket event back to this row.
	key := s.deps.Objects.ObjectKey(header.Filename)
	id := documentIDFromObjectKey(key)
	ctx = observability.AddDocumentID(ctx, id)

	if err := s.deps.Objects.Put(ctx, key, data, "application/pdf"); err != nil {
		s.logger.Error(ctx, "store upload", "error", err, "object", key)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "storage_error",
			"message":    "failed to store the file",
		})
		return
	}

	doc := &models.Document{ID: id, Filename: header.Filename, Path: key}
	if err := s.deps.Documents.CreateDocument(ctx, doc); err != nil {
		s.logger.Error(ctx, "record upload", "error", err, "object", key)
		if rmErr := s.deps.Objects.Remove(ctx, key); rmErr != nil {
			s.logger.Warn(ctx, "rollback object removal failed", "error", rmErr, "object", key)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "failed to record the document",
		})
		return
	}

	s.logger.Info(ctx, "document uploaded", "document_id", id, "bytes", len(data))
	c.JSON(http.StatusCreated, gin.H{
		"id":          doc.ID,
		"filename":    doc.Filename,
		"status":      "processing",
		"uploaded_at": doc.UploadedAt,
	})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error_code": "not_found",
			"message":    "document not found",
		})
		return
	}

	doc, err := s.deps.Documents.GetDocument(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "get document", "error", err, "document_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "failed to load the document",
		})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error_code": "not_found",
			"message":    "document not found",
		})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	opts := &store.ListOptions{}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_limit",
				"message":    "limit must be a non-negative integer",
			})
			return
		}
		opts.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_offset",
				"message":    "offset must be a non-negative integer",
			})
			return
		}
		opts.Offset = n
	}

	page, err := s.deps.Documents.ListDocuments(ctx, opts)
	if err != nil {
		s.logger.Error(ctx, "list documents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "failed to list documents",
		})
		return
	}
	c.JSON(http.StatusOK, page)
}

// handleDeleteDocument removes the row (chunks cascade) and then the
// stored object. Object removal is best effort: the row is already gone,
// so a failure only leaves an orphan object behind.
func (s *Server) handleDeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error_code": "not_found",
			"message":    "document not found",
		})
		return
	}
	ctx = observability.AddDocumentID(ctx, id)

	doc, err := s.deps.Documents.GetDocument(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "get document", "error", err, "document_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "failed to load the document",
		})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error_code": "not_found",
			"message":    "document not found",
		})
		return
	}

	if err := s.deps.Documents.DeleteDocument(ctx, id); err != nil {
		s.logger.Error(ctx, "delete document", "error", err, "document_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "failed to delete the document",
		})
		return
	}
	if err := s.deps.Objects.Remove(ctx, doc.Path); err != nil {
		s.logger.Warn(ctx, "object removal failed", "error", err, "object", doc.Path)
	}

	s.logger.Info(ctx, "document deleted", "document_id", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (s *Server) maxUploadBytes() int64 {
	if s.config.MaxUploadBytes > 0 {
		return s.config.MaxUploadBytes
	}
	return 10 << 20
}

// documentIDFromObjectKey extracts the uuid stem from an object key built
// by ObjectKey.
func documentIDFromObjectKey(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
