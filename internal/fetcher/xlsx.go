package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows above the header
}

// ReadXLSX parses an XLSX workbook and returns the selected sheet as string
// rows, skipping opts.SkipRows leading rows.
func ReadXLSX(data []byte, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// ReadXLSXLeads decodes the header and lead rows of an XLSX upload.
func ReadXLSXLeads(ctx context.Context, data []byte, opts Options) (*Result, error) {
	rows, err := ReadXLSX(data, opts.XLSX)
	if err != nil {
		return nil, err
	}
	return decodeLeads(ctx, &sliceReader{rows: rows}, opts)
}

// sliceReader replays sheet rows, padding short rows to the header width.
type sliceReader struct {
	rows  [][]string
	next  int
	width int
}

func (s *sliceReader) Read() ([]string, error) {
	for s.next < len(s.rows) {
		row := s.rows[s.next]
		s.next++
		if s.width == 0 {
			s.width = len(row)
			return row, nil
		}
		if isBlank(row) {
			continue
		}
		if len(row) < s.width {
			row = append(row, make([]string, s.width-len(row))...)
		}
		return row[:s.width], nil
	}
	return nil, io.EOF
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
