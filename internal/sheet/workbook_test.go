package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, sheets map[string][][]any, order []string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestOpenXLSX(t *testing.T) {
	data := buildXLSX(t, map[string][][]any{
		"Live": {
			{"Parameter", "08/21-0930", "08/21-1730"},
			{"CPU", 10, 20},
			{"MEM", 30, 40.5},
		},
		"Notes": {
			{"just", "text"},
		},
	}, []string{"Live", "Notes"})

	wb, err := Open("report.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, "report.xlsx", wb.Name)
	assert.Equal(t, []string{"Live", "Notes"}, wb.SheetNames())

	live, err := wb.Sheet("live")
	require.NoError(t, err)
	assert.Equal(t, "08/21-0930", live.Grid.Cell(0, 1))
	assert.Equal(t, "40.5", live.Grid.Cell(2, 2))

	_, err = wb.Sheet("missing")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestOpenCSV(t *testing.T) {
	wb, err := Open("uploads/Fed.csv", []byte("Parameter,08/21-0930\nCPU,\"1.5\"\n"))
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	assert.Equal(t, "Fed", wb.Sheets[0].Name)
	assert.Equal(t, "1.5", wb.Sheets[0].Grid.Cell(1, 1))
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open("report.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, IsSupported("a.txt"))
	assert.True(t, IsSupported("A.XLSX"))
}

func TestOpenCorruptXLSX(t *testing.T) {
	_, err := Open("broken.xlsx", []byte("not a zip"))
	assert.Error(t, err)
}
