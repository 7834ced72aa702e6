package export

import "errors"

var errNoColumns = errors.New("dataset has no columns")

// Dataset is a table keyed by column header. Cells missing from a row
// render empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// records returns each row's cells in header order.
func (d Dataset) records() [][]string {
	out := make([][]string, len(d.Rows))
	for i, row := range d.Rows {
		cells := make([]string, len(d.Headers))
		for j, h := range d.Headers {
			cells[j] = row[h]
		}
		out[i] = cells
	}
	return out
}

// widest returns, per column, the longest rune count among the header and
// its cells.
func (d Dataset) widest() []int {
	widths := make([]int, len(d.Headers))
	for i, h := range d.Headers {
		widths[i] = len([]rune(h))
	}
	for _, cells := range d.records() {
		for i, cell := range cells {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}
