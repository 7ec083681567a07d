package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Grid is a printable timetable: one column per day and one row per period.
type Grid struct {
	Title    string
	Subtitle string
	Columns  []string
	Rows     []GridRow
	Notes    []string
}

// GridRow holds the cells of a single period. A reserved row prints Label across the whole week.
type GridRow struct {
	Label    string
	Reserved string
	Cells    []Cell
}

// Cell is one period of one day; Lines are printed top to bottom.
type Cell struct {
	Lines []string
	Muted bool
}

const (
	pageWidth   = 277.0
	labelWidth  = 18.0
	headerH     = 8.0
	lineH       = 4.2
	minRowH     = 14.0
	reservedRow = 7.0
)

// PDFExporter renders timetable grids as landscape A4 pages.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws grid and returns the encoded PDF.
func (e *PDFExporter) Render(grid Grid) ([]byte, error) {
	if len(grid.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	for i, row := range grid.Rows {
		if row.Reserved == "" && len(row.Cells) != len(grid.Columns) {
			return nil, fmt.Errorf("row %d has %d cells for %d columns", i, len(row.Cells), len(grid.Columns))
		}
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, tr(grid.Title), "", 1, "C", false, 0, "")
	}
	if grid.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(grid.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	colWidth := (pageWidth - labelWidth) / float64(len(grid.Columns))
	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(labelWidth, headerH, "", "1", 0, "C", true, 0, "")
		for _, col := range grid.Columns {
			pdf.CellFormat(colWidth, headerH, tr(col), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	header()

	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range grid.Rows {
		height := rowHeight(row)
		if pdf.GetY()+height > pageH-bottom {
			pdf.AddPage()
			header()
		}
		if row.Reserved != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.SetFillColor(245, 245, 245)
			pdf.CellFormat(labelWidth, height, tr(row.Label), "1", 0, "C", true, 0, "")
			pdf.CellFormat(colWidth*float64(len(grid.Columns)), height, tr(row.Reserved), "1", 1, "C", true, 0, "")
			continue
		}

		x, y := pdf.GetXY()
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(labelWidth, height, tr(row.Label), "1", 0, "C", false, 0, "")
		for i, cell := range row.Cells {
			cx := x + labelWidth + colWidth*float64(i)
			if cell.Muted {
				pdf.SetFillColor(250, 235, 235)
				pdf.Rect(cx, y, colWidth, height, "FD")
			} else {
				pdf.Rect(cx, y, colWidth, height, "D")
			}
			pdf.SetXY(cx, y+1)
			for j, line := range cell.Lines {
				if j == 0 {
					pdf.SetFont("Arial", "B", 9)
				} else {
					pdf.SetFont("Arial", "", 8)
				}
				pdf.SetX(cx)
				pdf.CellFormat(colWidth, lineH, tr(truncate(pdf, line, colWidth-2)), "", 2, "C", false, 0, "")
			}
		}
		pdf.SetXY(x, y+height)
	}

	if len(grid.Notes) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 8)
		for _, note := range grid.Notes {
			pdf.MultiCell(0, lineH, tr(note), "", "L", false)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func rowHeight(row GridRow) float64 {
	if row.Reserved != "" {
		return reservedRow
	}
	lines := 1
	for _, cell := range row.Cells {
		if len(cell.Lines) > lines {
			lines = len(cell.Lines)
		}
	}
	if h := float64(lines)*lineH + 2; h > minRowH {
		return h
	}
	return minRowH
}

func truncate(pdf *gofpdf.Fpdf, text string, width float64) string {
	text = strings.TrimSpace(text)
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
