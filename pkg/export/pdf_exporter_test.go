package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFExporterRendersGrid(t *testing.T) {
	grid := Grid{
		Title:    "Grade 10-1",
		Subtitle: "Weekly timetable",
		Columns:  []string{"MON", "TUE"},
		Rows: []GridRow{
			{Label: "1", Cells: []Cell{{Lines: []string{"Mathematics", "Ani", "R101"}}, {}}},
			{Label: "2", Reserved: "Lunch"},
			{Label: "3", Cells: []Cell{{}, {Lines: []string{"A very long subject name that will not fit in the cell at all"}, Muted: true}}},
		},
		Notes: []string{"Generated for review"},
	}

	out, err := NewPDFExporter().Render(grid)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterRejectsRaggedRows(t *testing.T) {
	_, err := NewPDFExporter().Render(Grid{Columns: []string{"MON", "TUE"}, Rows: []GridRow{{Label: "1", Cells: []Cell{{}}}}})
	assert.Error(t, err)

	_, err = NewPDFExporter().Render(Grid{})
	assert.Error(t, err)
}
