// Package chunker splits extracted content blocks into retrieval-sized
// chunks. Text blocks are split recursively on a separator hierarchy with a
// configurable overlap; table blocks pass through whole, since splitting a
// table destroys its tabular meaning.
package chunker

import (
	"github.com/haasonsaas/corpus/internal/observability"
)

// Config contains chunking configuration. Sizes and offsets are measured in
// bytes of UTF-8 text.
type Config struct {
	// ChunkSize is the maximum size of each chunk in characters.
	// Default: 1000
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the number of characters carried over between
	// consecutive chunks of one block. Clamped to ChunkSize/5 when it
	// reaches ChunkSize. Default: 200
	ChunkOverlap int `yaml:"chunk_overlap"`

	// MinStandaloneChunkSize is the smallest text chunk allowed to stand
	// on its own. Shorter text chunks merge into their predecessor.
	// Default: 150
	MinStandaloneChunkSize int `yaml:"min_standalone_chunk_size"`
}

// DefaultConfig returns the default chunker configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:              1000,
		ChunkOverlap:           200,
		MinStandaloneChunkSize: 150,
	}
}

// DefaultSeparators is the default separator hierarchy. Splits are attempted
// in order, from largest semantic units to smallest.
var DefaultSeparators = []string{
	"\n\n", // Paragraph break
	"\n",   // Line break
	". ",   // Sentence end
	"? ",   // Question end
	"! ",   // Exclamation end
	"; ",   // Semicolon
	": ",   // Colon
	", ",   // Comma
	" ",    // Space
	"",     // Character (last resort)
}

// TextChunk is one window of a split text block.
type TextChunk struct {
	// Content is the chunk text, a verbatim substring of the source block.
	Content string

	// StartIndex is the offset of the chunk's first character within the
	// source block. Overlapping chunks overlap in index space too.
	StartIndex int
}

// Splitter implements recursive character splitting over content blocks.
// It tries to split on larger separators first, then falls back to smaller
// ones, similar to LangChain's RecursiveCharacterTextSplitter.
type Splitter struct {
	config     Config
	separators []string
	logger     *observability.Logger
}

// NewSplitter creates a splitter, applying defaults and clamping the overlap
// below the chunk size.
func NewSplitter(cfg Config) *Splitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultConfig().ChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MinStandaloneChunkSize <= 0 {
		cfg.MinStandaloneChunkSize = DefaultConfig().MinStandaloneChunkSize
	}

	return &Splitter{
		config:     cfg,
		separators: DefaultSeparators,
		logger:     observability.NewLogger(observability.LogConfig{}),
	}
}

// WithSeparators sets custom separators.
func (s *Splitter) WithSeparators(seps []string) *Splitter {
	s.separators = seps
	return s
}

// WithLogger sets the logger.
func (s *Splitter) WithLogger(logger *observability.Logger) *Splitter {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Config returns the effective configuration after defaulting and clamping.
func (s *Splitter) Config() Config {
	return s.config
}
