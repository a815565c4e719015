package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewSplitterDefaults(t *testing.T) {
	s := NewSplitter(Config{})

	got := s.Config()
	want := DefaultConfig()
	if got != want {
		t.Errorf("config = %+v, want %+v", got, want)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		overlap int
	}{
		{
			name:    "overlap equal to size resets to a fifth",
			cfg:     Config{ChunkSize: 100, ChunkOverlap: 100},
			overlap: 20,
		},
		{
			name:    "overlap above size resets to a fifth",
			cfg:     Config{ChunkSize: 100, ChunkOverlap: 150},
			overlap: 20,
		},
		{
			name:    "zero overlap is kept",
			cfg:     Config{ChunkSize: 100},
			overlap: 0,
		},
		{
			name:    "valid overlap is kept",
			cfg:     Config{ChunkSize: 100, ChunkOverlap: 30},
			overlap: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter(tt.cfg)
			if got := s.Config().ChunkOverlap; got != tt.overlap {
				t.Errorf("overlap = %d, want %d", got, tt.overlap)
			}
		})
	}
}

func TestSplitTextShortInput(t *testing.T) {
	s := NewSplitter(Config{})

	text := "  short text, whitespace preserved  "
	chunks := s.SplitText(text)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Content != text {
		t.Errorf("content = %q, want verbatim input", chunks[0].Content)
	}
	if chunks[0].StartIndex != 0 {
		t.Errorf("start = %d, want 0", chunks[0].StartIndex)
	}
}

func TestSplitTextEmptyInput(t *testing.T) {
	s := NewSplitter(Config{})
	if chunks := s.SplitText(""); chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
}

// checkChunkInvariants verifies the properties every split must hold: chunks
// fit the size limit, each is a verbatim substring of the input at its start
// index, the first starts at zero, the last ends at the end of the input,
// and starts strictly increase.
func checkChunkInvariants(t *testing.T, text string, chunks []TextChunk, size int) {
	t.Helper()

	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	if chunks[0].StartIndex != 0 {
		t.Errorf("first chunk start = %d, want 0", chunks[0].StartIndex)
	}
	last := chunks[len(chunks)-1]
	if last.StartIndex+len(last.Content) != len(text) {
		t.Errorf("last chunk ends at %d, want %d", last.StartIndex+len(last.Content), len(text))
	}

	for i, c := range chunks {
		if len(c.Content) > size {
			t.Errorf("chunk %d length = %d, want <= %d", i, len(c.Content), size)
		}
		end := c.StartIndex + len(c.Content)
		if c.StartIndex < 0 || end > len(text) || text[c.StartIndex:end] != c.Content {
			t.Errorf("chunk %d is not the substring at its start index %d", i, c.StartIndex)
		}
		if i > 0 && c.StartIndex <= chunks[i-1].StartIndex {
			t.Errorf("chunk %d start %d does not advance past %d", i, c.StartIndex, chunks[i-1].StartIndex)
		}
	}
}

// reconstruct drops each chunk's overlapping prefix and concatenates the
// rest.
func reconstruct(chunks []TextChunk) string {
	var b strings.Builder
	end := 0
	for _, c := range chunks {
		skip := end - c.StartIndex
		b.WriteString(c.Content[skip:])
		end = c.StartIndex + len(c.Content)
	}
	return b.String()
}

func TestSplitTextReconstruction(t *testing.T) {
	tests := []struct {
		name string
		text string
		cfg  Config
	}{
		{
			name: "paragraphs",
			text: strings.Repeat("Primera frase del informe. Segunda frase con datos.\n\n", 40),
			cfg:  Config{ChunkSize: 200, ChunkOverlap: 40},
		},
		{
			name: "no separators at all",
			text: strings.Repeat("z", 2500),
			cfg:  Config{ChunkSize: 300, ChunkOverlap: 50},
		},
		{
			name: "single long line of words",
			text: strings.TrimSpace(strings.Repeat("palabra ", 500)),
			cfg:  Config{ChunkSize: 250, ChunkOverlap: 25},
		},
		{
			name: "multibyte runes",
			text: strings.Repeat("número cuarenta y cinco, ", 100),
			cfg:  Config{ChunkSize: 180, ChunkOverlap: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter(tt.cfg)
			chunks := s.SplitText(tt.text)

			checkChunkInvariants(t, tt.text, chunks, s.Config().ChunkSize)
			if got := reconstruct(chunks); got != tt.text {
				t.Errorf("reconstruction differs: got %d bytes, want %d", len(got), len(tt.text))
			}
		})
	}
}

func TestSplitTextOverlapCarried(t *testing.T) {
	sentence := strings.Repeat("x", 18) + ". "
	text := strings.Repeat(sentence, 10)

	s := NewSplitter(Config{ChunkSize: 100, ChunkOverlap: 30})
	chunks := s.SplitText(text)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].StartIndex + len(chunks[i-1].Content)
		carried := prevEnd - chunks[i].StartIndex
		if carried <= 0 {
			t.Errorf("chunk %d carries no overlap", i)
		}
		if carried > 30 {
			t.Errorf("chunk %d carries %d bytes, want <= 30", i, carried)
		}
	}
}

func TestSplitTextPrefersWordBoundaries(t *testing.T) {
	text := strings.Repeat("frontera ", 60)

	s := NewSplitter(Config{ChunkSize: 100, ChunkOverlap: 20})
	chunks := s.SplitText(text)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		if text[chunks[i].StartIndex-1] != ' ' {
			t.Errorf("chunk %d starts mid-word at %d", i, chunks[i].StartIndex)
		}
	}
}

func TestSplitTextNeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("é", 300)

	s := NewSplitter(Config{ChunkSize: 100, ChunkOverlap: 0})
	chunks := s.SplitText(text)

	checkChunkInvariants(t, text, chunks, 100)
	for i, c := range chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("chunk %d split a rune", i)
		}
	}
}

func TestPartitionConcatenatesToInput(t *testing.T) {
	texts := []string{
		"Uno. Dos. Tres.\n\nCuatro, cinco; seis.",
		strings.Repeat("palabralarga", 30),
		strings.Repeat("línea corta\n", 25),
	}

	for _, text := range texts {
		parts := partition(text, DefaultSeparators, 50)
		if got := strings.Join(parts, ""); got != text {
			t.Errorf("partition does not concatenate back to input for %q...", text[:20])
		}
		for i, p := range parts {
			if len(p) > 50 {
				t.Errorf("piece %d length = %d, want <= 50", i, len(p))
			}
		}
	}
}

func TestRuneSplit(t *testing.T) {
	parts := runeSplit("aaaa", 3)
	if len(parts) != 2 || parts[0] != "aaa" || parts[1] != "a" {
		t.Errorf("parts = %v, want [aaa a]", parts)
	}

	parts = runeSplit("ééé", 2)
	for i, p := range parts {
		if !utf8.ValidString(p) {
			t.Errorf("piece %d invalid utf8", i)
		}
	}
	if got := strings.Join(parts, ""); got != "ééé" {
		t.Errorf("join = %q, want ééé", got)
	}
}
