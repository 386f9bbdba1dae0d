package grs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// missingMarkers are cell values read as a missing value, matching the usual
// CSV conventions of the upstream producer.
var missingMarkers = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

func isMissing(cell string) bool {
	_, ok := missingMarkers[strings.TrimSpace(cell)]
	return ok
}

// Table is the decoded raw table with derived fields computed.
type Table struct {
	Rows []Row
	// Read counts every data row seen, including rows a filter discarded.
	Read int
}

// ReadTable decodes a gzip-compressed CSV table and derives every row.
func ReadTable(r io.Reader) (*Table, error) {
	return readTable(r, "", nil)
}

// ReadCSV decodes an uncompressed CSV table and derives every row.
func ReadCSV(r io.Reader) (*Table, error) {
	return decodeCSV(r, "", nil)
}

func readTable(r io.Reader, path string, keep func(Row) bool) (*Table, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, &IOError{Op: "decompress", Path: path, Err: err}
	}
	defer func() { _ = zr.Close() }()
	return decodeCSV(zr, path, keep)
}

// columnSet maps required column names to their header positions.
type columnSet struct {
	date, loc, lin int
	raw            [rawNumericCount]int
}

func locateColumns(header []string) (columnSet, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			// byte order mark
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	var missing []string
	lookup := func(name string) int {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}
	cols := columnSet{
		date: lookup(ColumnDate),
		loc:  lookup(ColumnLocation),
		lin:  lookup(ColumnLineage),
	}
	for i := 0; i < rawNumericCount; i++ {
		cols.raw[i] = lookup(numericNames[i])
	}
	if len(missing) > 0 {
		return columnSet{}, &SchemaError{Missing: missing}
	}
	return cols, nil
}

func decodeCSV(r io.Reader, path string, keep func(Row) bool) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{Missing: RequiredColumns()}
	}
	if err != nil {
		return nil, classifyReadError(err, path, 1)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	table := &Table{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyReadError(err, path, 0)
		}
		line, _ := cr.FieldPos(0)
		table.Read++
		row, err := decodeRow(record, cols, line)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(row) {
			continue
		}
		row.Derive()
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func decodeRow(record []string, cols columnSet, line int) (Row, error) {
	var row Row
	if cell := strings.TrimSpace(record[cols.date]); !isMissing(cell) {
		date, err := time.Parse(DateLayout, cell)
		if err != nil {
			return Row{}, &ParseError{Line: line, Column: ColumnDate, Value: cell, Err: err}
		}
		row.Date = date
	}
	row.Location = keyCell(record[cols.loc])
	row.Lineage = keyCell(record[cols.lin])
	for i, at := range cols.raw {
		cell := strings.TrimSpace(record[at])
		if isMissing(cell) {
			row.values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return Row{}, &ParseError{Line: line, Column: numericNames[i], Value: cell, Err: err}
		}
		row.values[i] = v
	}
	return row, nil
}

// keyCell returns a trimmed location or lineage; missing markers become "" so
// the row is dropped at grouping.
func keyCell(cell string) string {
	if isMissing(cell) {
		return ""
	}
	return strings.TrimSpace(cell)
}

func classifyReadError(err error, path string, line int) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Line: csvErr.Line, Err: csvErr.Err}
	}
	if line > 0 {
		return &IOError{Op: "read", Path: path, Err: fmt.Errorf("line %d: %w", line, err)}
	}
	return &IOError{Op: "read", Path: path, Err: err}
}
