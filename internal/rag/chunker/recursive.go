package chunker

import (
	"strings"
	"unicode/utf8"
)

// piece is one fragment of the separator partition, tagged with its byte
// offset in the source text.
type piece struct {
	text  string
	start int
}

// SplitText splits text into chunks of at most ChunkSize characters with
// ChunkOverlap characters carried between neighbours.
//
// The pieces produced by the separator partition concatenate back to the
// input exactly, and every chunk is a verbatim substring of the input
// starting at its StartIndex. Dropping each chunk's overlapping prefix and
// concatenating the rest therefore reconstructs the input.
func (s *Splitter) SplitText(text string) []TextChunk {
	if text == "" {
		return nil
	}
	if len(text) <= s.config.ChunkSize {
		return []TextChunk{{Content: text, StartIndex: 0}}
	}

	parts := partition(text, s.separators, s.config.ChunkSize)
	pieces := make([]piece, 0, len(parts))
	offset := 0
	for _, part := range parts {
		pieces = append(pieces, piece{text: part, start: offset})
		offset += len(part)
	}
	return s.assemble(pieces)
}

// partition recursively splits text on the separator hierarchy until every
// piece fits in size. Separators stay attached to the piece they end, so the
// pieces concatenate back to the input unchanged.
func partition(text string, separators []string, size int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}
	if len(separators) == 0 || separators[0] == "" {
		return runeSplit(text, size)
	}

	sep := separators[0]
	if !strings.Contains(text, sep) {
		return partition(text, separators[1:], size)
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if len(part) > size {
			out = append(out, partition(part, separators[1:], size)...)
			continue
		}
		out = append(out, part)
	}
	return out
}

// runeSplit is the last-resort partition: runs of whole runes no longer than
// size bytes each.
func runeSplit(text string, size int) []string {
	var out []string
	start := 0
	for start < len(text) {
		end := start
		for end < len(text) {
			_, n := utf8.DecodeRuneInString(text[end:])
			if end+n-start > size {
				break
			}
			end += n
		}
		if end == start {
			// A single rune wider than size cannot be split further.
			_, n := utf8.DecodeRuneInString(text[start:])
			end = start + n
		}
		out = append(out, text[start:end])
		start = end
	}
	return out
}

// assemble greedily packs pieces into chunks of at most ChunkSize, carrying
// a piece-aligned suffix of up to ChunkOverlap into the next chunk.
func (s *Splitter) assemble(pieces []piece) []TextChunk {
	var chunks []TextChunk
	var window []piece
	winLen := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		var b strings.Builder
		b.Grow(winLen)
		for _, p := range window {
			b.WriteString(p.text)
		}
		chunks = append(chunks, TextChunk{Content: b.String(), StartIndex: window[0].start})
	}

	for _, p := range pieces {
		if winLen > 0 && winLen+len(p.text) > s.config.ChunkSize {
			flush()
			for len(window) > 0 && (winLen > s.config.ChunkOverlap || winLen+len(p.text) > s.config.ChunkSize) {
				winLen -= len(window[0].text)
				window = window[1:]
			}
		}
		window = append(window, p)
		winLen += len(p.text)
	}
	flush()

	return chunks
}
