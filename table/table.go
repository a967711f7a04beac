// Package table holds the in-memory tabular model shared by every pipeline
// stage. A Table is never mutated after construction; transformations
// return a new Table.
package table

import (
	"strings"

	"github.com/teranos/tabula/errors"
)

// Structural failures. All are marked errors.ErrInput.
var (
	ErrEmptyInput       = errors.Sentinel("empty input", errors.ErrInput)
	ErrMalformedInput   = errors.Sentinel("malformed input", errors.ErrInput)
	ErrDuplicateColumns = errors.Sentinel("duplicate column names", errors.ErrInput)
	ErrBlankColumnName  = errors.Sentinel("blank column name", errors.ErrInput)
)

// Table is an ordered list of named columns and rows of text cells.
// Every row has exactly one value per column.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New validates the column names and copies the rows into a Table.
// Short rows are padded with missing values; long rows are rejected.
func New(columns []string, rows [][]string) (*Table, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]string, 0, len(rows)),
	}
	for i, name := range columns {
		t.index[name] = i
	}
	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, errors.Wrapf(ErrMalformedInput, "row %d has %d fields, header has %d", i+1, len(row), len(columns))
		}
		cells := make([]string, len(columns))
		copy(cells, row)
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

func validateColumns(columns []string) error {
	if len(columns) == 0 {
		return errors.Wrap(ErrEmptyInput, "no columns")
	}
	seen := make(map[string]bool, len(columns))
	var dups []string
	for i, name := range columns {
		if strings.TrimSpace(name) == "" {
			return errors.Wrapf(ErrBlankColumnName, "column %d", i+1)
		}
		if seen[name] {
			dups = append(dups, name)
		}
		seen[name] = true
	}
	if len(dups) > 0 {
		return errors.Wrapf(ErrDuplicateColumns, "%s", strings.Join(dups, ", "))
	}
	return nil
}

// Columns returns a copy of the column names.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Rows returns a deep copy of all rows.
func (t *Table) Rows() [][]string {
	out := make([][]string, len(t.rows))
	for i := range t.rows {
		out[i] = t.Row(i)
	}
	return out
}

// Has reports whether the table has a column named name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the values of the named column, or nil when absent.
func (t *Table) Column(name string) []string {
	idx, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out
}

// Slice returns rows [start, end) as a new Table. Bounds are clamped.
func (t *Table) Slice(start, end int) *Table {
	if start < 0 {
		start = 0
	}
	if end > len(t.rows) {
		end = len(t.rows)
	}
	if start > end {
		start = end
	}
	out, _ := New(t.columns, t.rows[start:end])
	return out
}

// Head returns the first n rows as a new Table.
func (t *Table) Head(n int) *Table {
	return t.Slice(0, n)
}

// Project returns a table whose columns are exactly columns, in that order.
// Absent columns are filled with empty values and surplus columns dropped.
// Each cell passes through normalize when it is non-nil.
func (t *Table) Project(columns []string, normalize func(string) string) (*Table, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	rows := make([][]string, len(t.rows))
	for r, src := range t.rows {
		row := make([]string, len(columns))
		for c, name := range columns {
			if idx, ok := t.index[name]; ok {
				row[c] = src[idx]
			}
			if normalize != nil {
				row[c] = normalize(row[c])
			}
		}
		rows[r] = row
	}
	return New(columns, rows)
}
