// Package pipeline orchestrates document ingestion: fetch the object,
// extract content blocks, chunk them, create the parent document row, and
// index the chunks with embeddings. A failure after the row exists rolls the
// row back so the store never holds a document without a consistent chunk
// set.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/extract"
	"github.com/haasonsaas/corpus/internal/rag/store"
	"github.com/haasonsaas/corpus/pkg/models"
)

// ObjectStore provides document bytes.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Extractor turns PDF bytes into ordered content blocks.
type Extractor interface {
	Extract(ctx context.Context, data []byte, objectName string) ([]extract.ContentBlock, error)
}

// Chunker splits content blocks into chunk records.
type Chunker interface {
	SplitBlocks(ctx context.Context, blocks []extract.ContentBlock) []*models.DocumentChunk
}

// Indexer embeds chunk records and writes them to the vector store.
type Indexer interface {
	Index(ctx context.Context, documentID, filename string, chunks []*models.DocumentChunk) error
	Reindex(ctx context.Context, documentID, filename string, chunks []*models.DocumentChunk) error
}

// Pipeline runs document ingestion end to end.
type Pipeline struct {
	objects ObjectStore
	extract Extractor
	chunk   Chunker
	index   Indexer
	docs    store.DocumentStore
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates a pipeline.
func New(objects ObjectStore, ext Extractor, ch Chunker, ix Indexer, docs store.DocumentStore) *Pipeline {
	return &Pipeline{
		objects: objects,
		extract: ext,
		chunk:   ch,
		index:   ix,
		docs:    docs,
		logger:  observability.NewLogger(observability.LogConfig{}),
	}
}

// WithLogger sets the logger.
func (p *Pipeline) WithLogger(logger *observability.Logger) *Pipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithMetrics sets the metrics recorder.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithTracer sets the tracer.
func (p *Pipeline) WithTracer(t *observability.Tracer) *Pipeline {
	p.tracer = t
	return p
}

// ProcessObject ingests an object-created event. Upload keys embed the id
// of the document row the upload created; when that row exists the document
// is reprocessed in place, otherwise a fresh document is created. This is
// the entry point the event consumer retries through.
func (p *Pipeline) ProcessObject(ctx context.Context, objectName string) (*models.Document, error) {
	if id := DocumentIDFromKey(objectName); id != "" {
		doc, err := p.docs.GetDocument(ctx, id)
		if err != nil {
			return nil, p.fail(ctx, classify(StageStore, objectName, fmt.Errorf("look up document: %w", err)))
		}
		if doc != nil {
			return p.Reprocess(ctx, id)
		}
	}
	return p.Process(ctx, objectName)
}

// Process ingests the object at objectName as a new document. On any
// failure after the parent row exists, the row is deleted again; chunks
// cascade with it.
func (p *Pipeline) Process(ctx context.Context, objectName string) (doc *models.Document, err error) {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.TracePipelineRun(ctx, objectName)
		defer func() {
			p.tracer.RecordError(span, err)
			span.End()
		}()
	}

	chunks, perr := p.prepare(ctx, objectName)
	if perr != nil {
		return nil, p.fail(ctx, perr)
	}

	doc = &models.Document{
		Filename: path.Base(objectName),
		Path:     objectName,
	}
	start := time.Now()
	cerr := p.docs.CreateDocument(ctx, doc)
	p.recordStage(StageStore, start)
	if cerr != nil {
		return nil, p.fail(ctx, classify(StageStore, objectName, fmt.Errorf("create document: %w", cerr)))
	}

	ctx = observability.AddDocumentID(ctx, doc.ID)

	start = time.Now()
	ierr := p.index.Index(ctx, doc.ID, doc.Filename, chunks)
	p.recordStage(StageIndex, start)
	if ierr != nil {
		p.rollback(ctx, doc.ID)
		return nil, p.fail(ctx, classify(StageIndex, objectName, ierr))
	}

	p.succeed(ctx, doc, len(chunks))
	return doc, nil
}

// Reprocess re-ingests the object behind an existing document. The
// document's chunks are replaced; the parent row is kept even when the run
// fails, since it predates the run.
func (p *Pipeline) Reprocess(ctx context.Context, documentID string) (doc *models.Document, err error) {
	doc, gerr := p.docs.GetDocument(ctx, documentID)
	if gerr != nil {
		return nil, p.fail(ctx, classify(StageStore, documentID, fmt.Errorf("load document: %w", gerr)))
	}
	if doc == nil {
		return nil, p.fail(ctx, &PipelineError{
			Kind:   KindBadInput,
			Stage:  StageStore,
			Object: documentID,
			Err:    fmt.Errorf("document not found"),
		})
	}

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.TracePipelineRun(ctx, doc.Path)
		defer func() {
			p.tracer.RecordError(span, err)
			span.End()
		}()
	}
	ctx = observability.AddDocumentID(ctx, doc.ID)

	chunks, perr := p.prepare(ctx, doc.Path)
	if perr != nil {
		return nil, p.fail(ctx, perr)
	}

	start := time.Now()
	ierr := p.index.Reindex(ctx, doc.ID, doc.Filename, chunks)
	p.recordStage(StageIndex, start)
	if ierr != nil {
		return nil, p.fail(ctx, classify(StageIndex, doc.Path, ierr))
	}

	p.succeed(ctx, doc, len(chunks))
	return doc, nil
}

// prepare runs the stateless front half of ingestion: fetch, extract,
// chunk. No rows exist yet, so failures need no rollback.
func (p *Pipeline) prepare(ctx context.Context, objectName string) ([]*models.DocumentChunk, *PipelineError) {
	start := time.Now()
	data, err := p.objects.Get(ctx, objectName)
	p.recordStage(StageFetch, start)
	if err != nil {
		return nil, classify(StageFetch, objectName, fmt.Errorf("fetch object: %w", err))
	}

	start = time.Now()
	blocks, err := p.extract.Extract(ctx, data, objectName)
	p.recordStage(StageExtract, start)
	if err != nil {
		return nil, classify(StageExtract, objectName, err)
	}

	start = time.Now()
	chunks := p.chunk.SplitBlocks(ctx, blocks)
	p.recordStage(StageChunk, start)
	if len(chunks) == 0 {
		return nil, &PipelineError{
			Kind:   KindInvariant,
			Stage:  StageChunk,
			Object: objectName,
			Err:    ErrNoContent,
		}
	}
	return chunks, nil
}

// rollback removes the parent row created by a failed run. Chunks cascade.
// A rollback failure is logged; the original ingestion error still wins.
func (p *Pipeline) rollback(ctx context.Context, documentID string) {
	if err := p.docs.DeleteDocument(ctx, documentID); err != nil {
		p.logger.Error(ctx, "rollback failed, document row left behind",
			"document_id", documentID,
			"error", err)
	}
}

func (p *Pipeline) succeed(ctx context.Context, doc *models.Document, chunks int) {
	p.logger.Info(ctx, "document ingested",
		"document_id", doc.ID,
		"object", doc.Path,
		"chunks", chunks)
	if p.metrics != nil {
		p.metrics.RecordDocumentProcessed("success")
	}
}

func (p *Pipeline) fail(ctx context.Context, perr *PipelineError) error {
	p.logger.Error(ctx, "ingestion failed",
		"stage", perr.Stage,
		"kind", string(perr.Kind),
		"object", perr.Object,
		"error", perr.Err)
	if p.metrics != nil {
		p.metrics.RecordDocumentProcessed("error")
		p.metrics.RecordError("pipeline", string(perr.Kind))
	}
	return perr
}

func (p *Pipeline) recordStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStage(stage, time.Since(start).Seconds())
	}
}

// DocumentIDFromKey extracts the document id embedded in an upload object
// key ("<folder>/<uuid>.pdf"). It returns "" for keys that do not carry
// one, such as objects dropped into the bucket directly.
func DocumentIDFromKey(key string) string {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if _, err := uuid.Parse(stem); err != nil {
		return ""
	}
	return stem
}
