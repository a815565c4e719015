package extract

import (
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Geometry thresholds, in points. PDF Y grows toward the top of the page, so
// "top to bottom" means descending Y.
const (
	// yTolerance is the vertical slack for grouping glyphs onto one
	// baseline, and the minimum height a text strip must exceed to be
	// emitted as a block.
	yTolerance = 5.0

	// colTolerance is how far apart two left edges may sit and still count
	// as the same table column.
	colTolerance = 8.0

	// cellGap is the horizontal gap that separates two cells on a row.
	// Smaller gaps are ordinary word spacing.
	cellGap = 10.0

	// wordJoinFactor scales font size into the maximum gap between glyph
	// runs that still belong to one word.
	wordJoinFactor = 0.2

	// paragraphGapFactor scales font size into the baseline gap that marks
	// a paragraph break between rows.
	paragraphGapFactor = 1.8

	// tableGapFactor scales font size into the maximum baseline gap
	// between consecutive rows of one table.
	tableGapFactor = 2.5

	// defaultFontSize substitutes for glyphs whose font size is missing.
	defaultFontSize = 12.0
)

// word is a horizontal run of glyphs merged into one token.
type word struct {
	x    float64 // left edge
	w    float64 // width
	size float64 // font size
	text string
}

// row is one baseline of words, left to right.
type row struct {
	y     float64 // baseline Y
	words []word
}

// cell is a run of words separated from its neighbours by at least cellGap.
type cell struct {
	x    float64 // left edge of the first word
	text string
}

// tableSpan is a run of consecutive row indices forming one table.
// Both bounds are inclusive.
type tableSpan struct {
	start, end int
}

// buildRows clusters positioned glyphs into baseline rows ordered top to
// bottom, merging adjacent glyph runs into words. Whitespace-only glyphs
// split words but contribute no text.
func buildRows(texts []pdf.Text) []row {
	items := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		items = append(items, t)
	}
	if len(items) == 0 {
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Y != items[j].Y {
			return items[i].Y > items[j].Y
		}
		return items[i].X < items[j].X
	})

	var rows []row
	start := 0
	for i := 1; i <= len(items); i++ {
		if i < len(items) && items[start].Y-items[i].Y <= yTolerance {
			continue
		}
		if r := buildRow(items[start:i]); len(r.words) > 0 {
			rows = append(rows, r)
		}
		start = i
	}
	return rows
}

// buildRow merges one baseline's glyph runs into words.
func buildRow(items []pdf.Text) row {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].X < items[j].X
	})

	r := row{y: items[0].Y}
	var cur *word
	for _, t := range items {
		if strings.TrimSpace(t.S) == "" {
			cur = nil
			continue
		}

		size := t.FontSize
		if size <= 0 {
			size = defaultFontSize
		}

		if cur != nil {
			gap := t.X - (cur.x + cur.w)
			join := math.Max(wordJoinFactor*math.Max(size, cur.size), 1.0)
			if gap <= join {
				cur.text += t.S
				cur.w = t.X + t.W - cur.x
				if size > cur.size {
					cur.size = size
				}
				continue
			}
		}

		r.words = append(r.words, word{x: t.X, w: t.W, size: size, text: t.S})
		cur = &r.words[len(r.words)-1]
	}
	return r
}

// splitCells groups a row's words into cells wherever the horizontal gap
// between neighbours reaches cellGap.
func splitCells(r row) []cell {
	var cells []cell
	for i, w := range r.words {
		if i > 0 {
			prev := r.words[i-1]
			if w.x-(prev.x+prev.w) < cellGap {
				cells[len(cells)-1].text += " " + w.text
				continue
			}
		}
		cells = append(cells, cell{x: w.x, text: w.text})
	}
	return cells
}

// rowSize is the largest font size on a row, falling back to the default
// when no glyph carried one.
func rowSize(r row) float64 {
	size := 0.0
	for _, w := range r.words {
		if w.size > size {
			size = w.size
		}
	}
	if size <= 0 {
		return defaultFontSize
	}
	return size
}

// rowText renders a row as plain text, joining cells with single spaces.
func rowText(r row) string {
	parts := make([]string, 0, len(r.words))
	for _, w := range r.words {
		parts = append(parts, w.text)
	}
	return strings.Join(parts, " ")
}

// joinRows renders rows as flowing text. Consecutive rows join with a
// newline, or a blank line when the baseline gap marks a paragraph break.
func joinRows(rows []row) string {
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			prev := rows[i-1]
			if prev.y-r.y > paragraphGapFactor*math.Max(rowSize(prev), rowSize(r)) {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(rowText(r))
	}
	return strings.TrimSpace(b.String())
}

// stripHeight approximates the vertical extent of a run of rows, from the
// ascender of the first baseline to the last baseline.
func stripHeight(rows []row) float64 {
	if len(rows) == 0 {
		return 0
	}
	return rows[0].y + rowSize(rows[0]) - rows[len(rows)-1].y
}

// detectTables finds maximal runs of two or more consecutive rows that each
// hold at least two cells with aligned column starts. Rows separated by more
// than a few line heights never join the same table.
func detectTables(rows []row, cells [][]cell) []tableSpan {
	var spans []tableSpan
	i := 0
	for i < len(rows) {
		if len(cells[i]) < 2 {
			i++
			continue
		}
		j := i
		for j+1 < len(rows) &&
			len(cells[j+1]) >= 2 &&
			aligned(cells[j], cells[j+1]) &&
			rows[j].y-rows[j+1].y <= tableGapFactor*rowSize(rows[j]) {
			j++
		}
		if j > i {
			spans = append(spans, tableSpan{start: i, end: j})
		}
		i = j + 1
	}
	return spans
}

// aligned reports whether two cell rows share at least two column starts
// within colTolerance.
func aligned(a, b []cell) bool {
	shared := 0
	for _, ca := range a {
		for _, cb := range b {
			if math.Abs(ca.x-cb.x) <= colTolerance {
				shared++
				break
			}
		}
	}
	return shared >= 2
}

// buildGrid lays a table's cell rows onto a rectangular grid. Column
// positions come from clustering cell left edges across all rows; each cell
// lands in its nearest column, and columns a row never fills stay empty.
func buildGrid(cells [][]cell) [][]string {
	centers := columnCenters(cells)
	if len(centers) == 0 {
		return nil
	}

	grid := make([][]string, len(cells))
	for i, rowCells := range cells {
		grid[i] = make([]string, len(centers))
		for _, c := range rowCells {
			col := nearestColumn(centers, c.x)
			if grid[i][col] != "" {
				grid[i][col] += " " + c.text
			} else {
				grid[i][col] = c.text
			}
		}
	}
	return grid
}

// columnCenters clusters cell left edges into column positions.
func columnCenters(cells [][]cell) []float64 {
	var xs []float64
	for _, rowCells := range cells {
		for _, c := range rowCells {
			xs = append(xs, c.x)
		}
	}
	if len(xs) == 0 {
		return nil
	}
	sort.Float64s(xs)

	var centers []float64
	sum, n := xs[0], 1.0
	for _, x := range xs[1:] {
		if x-sum/n <= colTolerance {
			sum += x
			n++
			continue
		}
		centers = append(centers, sum/n)
		sum, n = x, 1
	}
	return append(centers, sum/n)
}

// nearestColumn returns the index of the center closest to x.
func nearestColumn(centers []float64, x float64) int {
	best := 0
	for i, c := range centers {
		if math.Abs(x-c) < math.Abs(x-centers[best]) {
			best = i
		}
	}
	return best
}
