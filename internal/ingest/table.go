// Package ingest reads per-origin spreadsheet extracts into a uniform
// in-memory table.
//
// Delimited text (.csv, .txt), modern spreadsheets (.xlsx), legacy
// spreadsheets (.xls) and zip bundles of any of these are supported. Every
// cell is kept as a string; typing is the job of the normalizer in core.
package ingest

import (
	"errors"
	"strings"
)

// OriginColumn is the column appended to every row loaded from an origin
// directory. Its value is the origin name ("servi", "imp").
const OriginColumn = "origem"

var (
	// ErrEmptyFile is returned when a file has no bytes or no header row.
	ErrEmptyFile = errors.New("empty file")

	// ErrCorruptFile is returned when a spreadsheet cannot be decoded.
	ErrCorruptFile = errors.New("corrupt file")

	// ErrUnsupportedFormat is returned for extensions the reader does not handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoInput is returned by a Source when no readable file exists for a directory.
	ErrNoInput = errors.New("no input files")
)

// Row is one data line of a source file.
type Row struct {
	Source string   // origin-relative file name, for diagnostics
	Line   int      // 1-indexed line (CSV) or sheet row number
	Values []string // aligned with Table.Columns
}

// Get returns the cell at position i, or "" when the row is short.
func (r Row) Get(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Table is a header plus rows, all string-typed.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index maps trimmed, lower-cased column names to their position.
// When a header repeats, the first occurrence wins.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		key := headerKey(c)
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}
	return idx
}

// WithColumn returns a copy of t with a constant column appended (or
// overwritten when a column of the same name already exists).
func (t *Table) WithColumn(name, value string) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	pos, ok := t.Index()[headerKey(name)]
	if !ok {
		pos = len(out.Columns)
		out.Columns = append(out.Columns, name)
	}

	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		vals := make([]string, len(out.Columns))
		copy(vals, r.Values)
		vals[pos] = value
		out.Rows[i] = Row{Source: r.Source, Line: r.Line, Values: vals}
	}
	return out
}

// Concat stacks tables vertically. Columns are matched case-insensitively;
// the first spelling seen becomes the output header. Cells for columns a
// table does not carry are left empty.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := make(map[string]int)

	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			key := headerKey(c)
			if _, ok := pos[key]; !ok {
				pos[key] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		mapping := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			mapping[i] = pos[headerKey(c)]
		}
		for _, r := range t.Rows {
			vals := make([]string, len(out.Columns))
			for i, v := range r.Values {
				if i < len(mapping) {
					vals[mapping[i]] = v
				}
			}
			out.Rows = append(out.Rows, Row{Source: r.Source, Line: r.Line, Values: vals})
		}
	}

	return out
}

func headerKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// fromRecords builds a table from raw records, treating the first non-blank
// record as the header. lineOf maps a record index to its source line.
func fromRecords(source string, records [][]string, lineOf func(i int) int) (*Table, error) {
	start := -1
	for i, rec := range records {
		if !blank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(records[start]))
	for i, h := range records[start] {
		header[i] = strings.TrimSpace(h)
	}
	// Trailing unnamed columns are spreadsheet padding.
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil, ErrEmptyFile
	}

	t := &Table{Columns: header}
	for i := start + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		vals := make([]string, len(header))
		copy(vals, rec)
		t.Rows = append(t.Rows, Row{Source: source, Line: lineOf(i), Values: vals})
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
