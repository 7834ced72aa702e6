package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	// landscapeColumns is the column count from which pages turn sideways.
	landscapeColumns = 7
	rowHeight        = 7.0
	headerHeight     = 8.0
	// minColumnShare keeps narrow columns such as "No." readable.
	minColumnShare = 0.05
)

// PDFExporter renders a dataset as an A4 table. The header row is repeated
// on every page and pages are numbered in the footer.
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errNoColumns
	}
	orientation, usable := "P", 190.0
	if len(data.Headers) >= landscapeColumns {
		orientation, usable = "L", 277.0
	}
	widths := columnWidths(data.widest(), usable)

	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	first := true
	pdf.SetHeaderFunc(func() {
		if first && title != "" {
			pdf.SetFont("Arial", "B", 14)
			pdf.CellFormat(0, 10, tr(strings.ToUpper(title)), "", 1, "C", false, 0, "")
			pdf.Ln(5)
		}
		first = false
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(225, 225, 225)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], headerHeight, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		pdf.SetFillColor(245, 245, 245)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	for n, cells := range data.records() {
		for i, cell := range cells {
			pdf.CellFormat(widths[i], rowHeight, tr(cell), "1", 0, "", n%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares usable millimetres in proportion to each column's
// widest text, with a floor of minColumnShare per column.
func columnWidths(chars []int, usable float64) []float64 {
	total := 0
	for _, n := range chars {
		total += n
	}
	widths := make([]float64, len(chars))
	if total == 0 {
		for i := range widths {
			widths[i] = usable / float64(len(chars))
		}
		return widths
	}
	floor := usable * minColumnShare
	sum := 0.0
	for i, n := range chars {
		widths[i] = usable * float64(n) / float64(total)
		if widths[i] < floor {
			widths[i] = floor
		}
		sum += widths[i]
	}
	for i := range widths {
		widths[i] *= usable / sum
	}
	return widths
}
