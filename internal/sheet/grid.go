package sheet

import "strings"

// Grid holds a sheet's cells as text in row-major order. Rows may be ragged.
type Grid [][]string

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Compact drops rows and columns whose cells are all blank.
func (g Grid) Compact() Grid {
	width := 0
	rows := make([][]string, 0, len(g))
	for _, row := range g {
		keep := false
		for _, cell := range row {
			if !isBlank(cell) {
				keep = true
				break
			}
		}
		if !keep {
			continue
		}
		rows = append(rows, row)
		if len(row) > width {
			width = len(row)
		}
	}

	used := make([]bool, width)
	for _, row := range rows {
		for c, cell := range row {
			if !isBlank(cell) {
				used[c] = true
			}
		}
	}

	out := make(Grid, 0, len(rows))
	for _, row := range rows {
		compact := make([]string, 0, width)
		for c := 0; c < width; c++ {
			if !used[c] {
				continue
			}
			if c < len(row) {
				compact = append(compact, row[c])
			} else {
				compact = append(compact, "")
			}
		}
		out = append(out, compact)
	}
	return out
}

// Width is the length of the longest row.
func (g Grid) Width() int {
	width := 0
	for _, row := range g {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Cell returns the cell at (r, c) or "" when out of range.
func (g Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return ""
	}
	return g[r][c]
}

// Head returns at most n leading rows.
func (g Grid) Head(n int) Grid {
	if n < 0 || n >= len(g) {
		return g
	}
	return g[:n]
}
