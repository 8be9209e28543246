package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported_workbook_format")
	ErrSheetNotFound     = errors.New("sheet_not_found")
)

// Sheet is one named tab of a workbook.
type Sheet struct {
	Name string
	Grid Grid
}

// Workbook is a parsed spreadsheet file.
type Workbook struct {
	Name   string
	Sheets []Sheet
}

// SheetNames lists the sheets in workbook order.
func (w *Workbook) SheetNames() []string {
	out := make([]string, 0, len(w.Sheets))
	for _, s := range w.Sheets {
		out = append(out, s.Name)
	}
	return out
}

// Sheet finds a sheet by exact name, then case-insensitively.
func (w *Workbook) Sheet(name string) (Sheet, error) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, nil
		}
	}
	for _, s := range w.Sheets {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return Sheet{}, ErrSheetNotFound
}

// IsSupported reports whether the file name has a readable extension.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls", ".csv":
		return true
	default:
		return false
	}
}

// Open parses workbook bytes, choosing the reader from the file extension.
func Open(name string, data []byte) (*Workbook, error) {
	var (
		wb  *Workbook
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		wb, err = ReadXLSX(bytes.NewReader(data))
	case ".xls":
		wb, err = ReadXLS(bytes.NewReader(data))
	case ".csv":
		wb, err = ReadCSV(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(name), err)
	}
	wb.Name = filepath.Base(name)
	return wb, nil
}

// ReadXLSX reads every sheet of an OOXML workbook with raw cell values.
func ReadXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Grid: Grid(rows)})
	}
	return wb, nil
}

// ErrNoWorkbookStream marks an OLE2 file without a Workbook or Book stream.
var ErrNoWorkbookStream = errors.New("xls_workbook_stream_missing")

// maxXLSColumns is the BIFF8 column limit.
const maxXLSColumns = 256

// ReadXLS reads a legacy BIFF workbook.
func ReadXLS(rs io.ReadSeeker) (*Workbook, error) {
	book, err := xls.OpenReader(rs, "utf-8")
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, ErrNoWorkbookStream
	}

	wb := &Workbook{}
	for i := 0; i < book.NumSheets(); i++ {
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		grid := make(Grid, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			grid = append(grid, xlsRowCells(ws, r))
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: ws.Name, Grid: grid})
	}
	return wb, nil
}

// xlsRowCells returns nil for rows the file never wrote. Rows built from
// cells alone carry no column bounds, so those are scanned to the limit.
func xlsRowCells(ws *xls.WorkSheet, r int) (cells []string) {
	defer func() {
		// WorkSheet.Row dereferences a missing row
		if recover() != nil {
			cells = nil
		}
	}()

	row := ws.Row(r)
	width := row.LastCol()
	if width <= 0 {
		width = maxXLSColumns - 1
	}
	cells = make([]string, 0, width+1)
	for c := 0; c <= width; c++ {
		cells = append(cells, row.Col(c))
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

// ReadCSV reads a CSV file as a single-sheet workbook.
func ReadCSV(sheetName string, r io.Reader) (*Workbook, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return &Workbook{Sheets: []Sheet{{Name: sheetName, Grid: Grid(rows)}}}, nil
}
