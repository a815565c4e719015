// Package extract converts raw PDF bytes into an ordered list of content
// blocks, separating flowing text from tables so downstream chunking can
// treat them differently.
//
// Table detection is a geometry heuristic over positioned glyphs: runs of
// consecutive baselines that each carry two or more cells with aligned left
// edges are treated as one table. Detected tables are rendered as Markdown;
// everything between them is emitted as plain text strips in reading order.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/pkg/models"
)

// maxContextChars bounds the table context captured from the text above a
// table, in runes.
const maxContextChars = 150

// BadInputError marks a document that cannot be processed at all (not a
// PDF, no pages, every page unreadable), as opposed to transient downstream
// failures. Callers map it to a client error rather than retrying.
type BadInputError struct {
	// Name is the object identifier the bytes came from.
	Name string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *BadInputError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("bad input: %v", e.Err)
	}
	return fmt.Sprintf("bad input %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BadInputError) Unwrap() error {
	return e.Err
}

// IsBadInput reports whether err marks unprocessable input.
func IsBadInput(err error) bool {
	var b *BadInputError
	return errors.As(err, &b)
}

// ContentBlock is one extracted unit of page content, either a text strip or
// a Markdown-rendered table.
type ContentBlock struct {
	// Type is text or table.
	Type models.ContentType

	// Content is the block text. For tables this is the Markdown rendering.
	Content string

	// Page is the 1-based source page number.
	Page int

	// TotalPages is the page count of the source document.
	TotalPages int

	// Position is the block's distance from the top of the page, in points.
	// It is used only for ordering blocks within a page.
	Position float64

	// Context holds up to 150 characters of the text immediately above a
	// table. Empty for text blocks and for tables with nothing above them.
	Context string
}

// Extractor parses PDFs into content blocks.
type Extractor struct {
	logger *observability.Logger
}

// New creates an extractor. A nil logger falls back to the default
// configuration.
func New(logger *observability.Logger) *Extractor {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Extractor{logger: logger}
}

// Extract parses data and returns content blocks in reading order.
// objectName identifies the source for logging and error reporting only.
//
// Pages that fail to parse are logged and skipped. The whole call fails with
// a BadInputError when the document cannot be opened, has no pages, or every
// page is unreadable.
func (e *Extractor) Extract(ctx context.Context, data []byte, objectName string) ([]ContentBlock, error) {
	if len(data) == 0 {
		return nil, &BadInputError{Name: objectName, Err: errors.New("empty file")}
	}

	reader, totalPages, err := openReader(data)
	if err != nil {
		return nil, &BadInputError{Name: objectName, Err: err}
	}
	if totalPages == 0 {
		return nil, &BadInputError{Name: objectName, Err: errors.New("pdf has no pages")}
	}

	var blocks []ContentBlock
	failed := 0
	for num := 1; num <= totalPages; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageBlocks, err := e.extractPage(reader, num, totalPages)
		if err != nil {
			failed++
			e.logger.Warn(ctx, "skipping unreadable page",
				"object", objectName,
				"page", num,
				"error", err)
			continue
		}
		blocks = append(blocks, pageBlocks...)
	}

	if failed == totalPages {
		return nil, &BadInputError{Name: objectName, Err: fmt.Errorf("all %d pages unreadable", totalPages)}
	}

	e.logger.Debug(ctx, "extracted content blocks",
		"object", objectName,
		"pages", totalPages,
		"blocks", len(blocks))
	return blocks, nil
}

// openReader opens the PDF and reads its page count. The library panics on
// some malformed files, so both steps run under a recover guard.
func openReader(data []byte) (reader *pdf.Reader, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, pages, err = nil, 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}
	return reader, reader.NumPage(), nil
}

// extractPage pulls positioned text off one page and assembles it into
// blocks. Content-stream parsing can panic inside the pdf library, so the
// whole page is processed under a recover guard and a panic becomes a
// per-page error.
func (e *Extractor) extractPage(reader *pdf.Reader, num, totalPages int) (blocks []ContentBlock, err error) {
	defer func() {
		if r := recover(); r != nil {
			blocks, err = nil, fmt.Errorf("page content: %v", r)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return nil, errors.New("null page object")
	}

	rows := buildRows(page.Content().Text)
	if len(rows) == 0 {
		return nil, nil
	}

	cells := make([][]cell, len(rows))
	for i, r := range rows {
		cells[i] = splitCells(r)
	}

	return assemble(rows, cells, detectTables(rows, cells), num, totalPages), nil
}

// assemble sweeps the page rows top to bottom, flushing pending text rows as
// a strip before each table and after the last one. A table's context is the
// tail of the strip directly above it; a table that follows another table
// has no text above and gets an empty context.
func assemble(rows []row, cells [][]cell, tables []tableSpan, pageNum, totalPages int) []ContentBlock {
	pageTop := rows[0].y
	var blocks []ContentBlock
	var strip []row

	flushStrip := func() {
		defer func() { strip = nil }()
		if stripHeight(strip) <= yTolerance {
			return
		}
		text := joinRows(strip)
		if text == "" {
			return
		}
		blocks = append(blocks, ContentBlock{
			Type:       models.ContentTypeText,
			Content:    text,
			Page:       pageNum,
			TotalPages: totalPages,
			Position:   pageTop - strip[0].y,
		})
	}

	next := 0
	for i := 0; i < len(rows); i++ {
		if next < len(tables) && tables[next].start == i {
			span := tables[next]
			next++

			context := takeTrailing(joinRows(strip), maxContextChars)
			flushStrip()

			blocks = append(blocks, ContentBlock{
				Type:       models.ContentTypeTable,
				Content:    renderMarkdown(buildGrid(cells[span.start : span.end+1])),
				Page:       pageNum,
				TotalPages: totalPages,
				Position:   pageTop - rows[span.start].y,
				Context:    context,
			})
			i = span.end
			continue
		}
		strip = append(strip, rows[i])
	}
	flushStrip()

	return blocks
}
