package chunker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/corpus/internal/rag/extract"
	"github.com/haasonsaas/corpus/pkg/models"
)

// SplitBlocks turns extracted content blocks into document chunks, in block
// order.
//
// Table blocks become single atomic chunks regardless of length; a table
// over the chunk size is logged but never split. Text blocks are split with
// SplitText, each chunk keeping the block's provenance and the offset of its
// first character. A final pass merges undersized text chunks into their
// predecessor and renumbers the result contiguously.
//
// Document identity (document id, filename) is filled in by the indexer.
func (s *Splitter) SplitBlocks(ctx context.Context, blocks []extract.ContentBlock) []*models.DocumentChunk {
	var chunks []*models.DocumentChunk
	now := time.Now()

	for _, b := range blocks {
		if b.Type == models.ContentTypeTable {
			if len(b.Content) > s.config.ChunkSize {
				s.logger.Warn(ctx, "table exceeds chunk size, keeping atomic",
					"table_size", len(b.Content),
					"chunk_size", s.config.ChunkSize,
					"page", b.Page)
			}
			start := 0
			chunks = append(chunks, &models.DocumentChunk{
				ID:      uuid.New().String(),
				Content: b.Content,
				Metadata: models.ChunkMetadata{
					ContentType:  models.ContentTypeTable,
					IsAtomic:     true,
					Page:         b.Page,
					TotalPages:   b.TotalPages,
					StartIndex:   &start,
					TableContext: b.Context,
				},
				CreatedAt: now,
			})
			continue
		}

		for _, tc := range s.SplitText(b.Content) {
			start := tc.StartIndex
			chunks = append(chunks, &models.DocumentChunk{
				ID:      uuid.New().String(),
				Content: tc.Content,
				Metadata: models.ChunkMetadata{
					ContentType: models.ContentTypeText,
					Page:        b.Page,
					TotalPages:  b.TotalPages,
					StartIndex:  &start,
				},
				CreatedAt: now,
			})
		}
	}

	chunks = s.mergeSmallChunks(chunks)
	for i, c := range chunks {
		c.Index = i
		c.Metadata.ChunkIndex = i
	}
	return chunks
}

// mergeSmallChunks folds text chunks shorter than MinStandaloneChunkSize
// into the chunk before them, separated by a blank line. Tables never merge:
// an atomic chunk neither absorbs a small successor nor merges into a
// predecessor, so a short text chunk right after a table stays standalone.
func (s *Splitter) mergeSmallChunks(chunks []*models.DocumentChunk) []*models.DocumentChunk {
	var out []*models.DocumentChunk
	for _, c := range chunks {
		if len(out) > 0 &&
			c.Metadata.ContentType == models.ContentTypeText &&
			len(c.Content) < s.config.MinStandaloneChunkSize {
			prev := out[len(out)-1]
			if prev.Metadata.ContentType == models.ContentTypeText {
				prev.Content += "\n\n" + c.Content
				prev.Metadata.MergedSmallChunk = true
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
