// Package ingest reads tabular expense reports and turns their rows into
// canonical expense records.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Ingest errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("table has no header row")
	ErrNoSheets          = errors.New("workbook has no sheets")
)

// Table is one sheet of an expense report. Lines holds the one-based source
// line of each row (the header is line 1) and is nil when the source has no
// line structure.
type Table struct {
	Name    string
	Columns []string
	Rows    []model.RawRow
	Lines   []int
}

// Line returns the source line of row i, or 0 when it is unknown.
func (t *Table) Line(i int) int {
	if i < 0 || i >= len(t.Lines) {
		return 0
	}
	return t.Lines[i]
}

// Read parses r according to the extension of name.
func Read(name string, r io.Reader) (*Table, error) {
	var (
		table *Table
		err   error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		table, err = ReadXLSX(r)
	case ".xls":
		table, err = ReadXLS(r)
	case ".csv":
		table, err = ReadCSV(r)
	case ".json":
		table, err = ReadJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}

	table.Name = filepath.Base(name)
	return table, nil
}

// ReadXLSX reads the first sheet of an Office Open XML workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = wb.Close() }()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoSheets
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	return fromRecords(rows, nil)
}

// ReadXLS reads the first sheet of a legacy BIFF workbook. The decoder
// panics on some malformed files, so panics are returned as errors.
func ReadXLS(r io.Reader) (table *Table, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			table, err = nil, fmt.Errorf("failed to decode xls: %v", rec)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read xls: %w", err)
	}

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrNoSheets
	}

	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		records = append(records, cells)
	}

	return fromRecords(records, nil)
}

// ReadCSV reads a comma separated report with a header line. A leading
// UTF-8 byte order mark, as written by spreadsheet exports, is ignored.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}

	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}

	return fromRecords(records, lines)
}

// ReadJSON reads rows supplied as JSON objects, either as a bare array or
// wrapped as {"rows": [...]}. Column order follows first appearance.
func ReadJSON(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}

	var objects []map[string]any
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &objects)
	} else {
		var wrapped struct {
			Rows []map[string]any `json:"rows"`
		}
		err = json.Unmarshal(trimmed, &wrapped)
		objects = wrapped.Rows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode json rows: %w", err)
	}

	table := &Table{Rows: make([]model.RawRow, 0, len(objects))}
	seen := make(map[string]struct{})
	for _, obj := range objects {
		// Map iteration order is random, so sort new keys for a stable header.
		var fresh []string
		for k := range obj {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		slices.Sort(fresh)
		table.Columns = append(table.Columns, fresh...)

		row := make(model.RawRow, len(obj))
		for k, v := range obj {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			row[k] = v
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// fromRecords turns a header line plus data lines into a Table. Empty cells
// are left out of the row, and lines with no values at all are dropped; the
// surviving rows keep their source line. lines gives the source line of each
// record, and nil means record i sits on line i+1.
func fromRecords(records [][]string, lines []int) (*Table, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrNoHeader
	}

	header := records[0]
	table := &Table{
		Columns: append([]string(nil), header...),
		Rows:    make([]model.RawRow, 0, len(records)-1),
		Lines:   make([]int, 0, len(records)-1),
	}

	for n, record := range records[1:] {
		line := n + 2
		if lines != nil {
			line = lines[n+1]
		}

		row := make(model.RawRow, len(header))
		for i, col := range header {
			if i >= len(record) || record[i] == "" {
				continue
			}
			row[col] = record[i]
		}
		if len(row) == 0 {
			continue
		}
		table.Rows = append(table.Rows, row)
		table.Lines = append(table.Lines, line)
	}

	return table, nil
}
