package dataprocessing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumn is matched by every MissingColumnError
var ErrMissingColumn = errors.New("missing column")

// MissingColumnError reports a column a transform needed but the table lacks
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// Is makes errors.Is(err, ErrMissingColumn) true
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// Table is an in-memory tabular dataset: ordered named columns and rows of
// string cells. Every row has exactly len(Columns) cells. An empty cell is a
// missing value.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable creates a table, padding short rows and truncating long ones to
// the number of columns.
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, normalizeRow(r, len(columns)))
	}
	return t
}

func normalizeRow(r []string, width int) []string {
	row := make([]string, width)
	copy(row, r)
	return row
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	c := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		c.Rows[i] = append([]string(nil), r...)
	}
	return c
}

// Index returns the position of a column or a MissingColumnError
func (t *Table) Index(column string) (int, error) {
	for i, c := range t.Columns {
		if c == column {
			return i, nil
		}
	}
	return -1, &MissingColumnError{Column: column}
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(column string) bool {
	_, err := t.Index(column)
	return err == nil
}

// Require returns a MissingColumnError for the first absent column
func (t *Table) Require(columns ...string) error {
	for _, c := range columns {
		if _, err := t.Index(c); err != nil {
			return err
		}
	}
	return nil
}

// Value returns the cell of row i in column
func (t *Table) Value(i int, column string) (string, error) {
	idx, err := t.Index(column)
	if err != nil {
		return "", err
	}
	return t.Rows[i][idx], nil
}

// DropColumns removes the named columns. All of them must exist.
func (t *Table) DropColumns(columns ...string) error {
	drop := make(map[int]bool, len(columns))
	for _, c := range columns {
		idx, err := t.Index(c)
		if err != nil {
			return err
		}
		drop[idx] = true
	}

	keep := make([]int, 0, len(t.Columns)-len(drop))
	for i := range t.Columns {
		if !drop[i] {
			keep = append(keep, i)
		}
	}

	t.Columns = pick(t.Columns, keep)
	for i, r := range t.Rows {
		t.Rows[i] = pick(r, keep)
	}
	return nil
}

func pick(values []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

// MapColumn rewrites every cell of column with fn. The first error aborts
// the rewrite and is returned with the offending row number.
func (t *Table) MapColumn(column string, fn func(string) (string, error)) error {
	idx, err := t.Index(column)
	if err != nil {
		return err
	}
	for i, r := range t.Rows {
		v, err := fn(r[idx])
		if err != nil {
			return fmt.Errorf("column %q row %d: %w", column, i+1, err)
		}
		r[idx] = v
	}
	return nil
}

// SetColumn computes column for every row i, appending it when it does not
// exist yet and overwriting it otherwise.
func (t *Table) SetColumn(column string, fn func(i int, row Row) (string, error)) error {
	idx, err := t.Index(column)
	if err != nil {
		t.Columns = append(t.Columns, column)
		idx = len(t.Columns) - 1
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}

	for i, r := range t.Rows {
		v, err := fn(i, Row{table: t, cells: r})
		if err != nil {
			return fmt.Errorf("column %q row %d: %w", column, i+1, err)
		}
		r[idx] = v
	}
	return nil
}

// FilterRows keeps only the rows for which keep returns true
func (t *Table) FilterRows(keep func(row Row) (bool, error)) error {
	kept := make([][]string, 0, len(t.Rows))
	for i, r := range t.Rows {
		ok, err := keep(Row{table: t, cells: r})
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if ok {
			kept = append(kept, r)
		}
	}
	t.Rows = kept
	return nil
}

// DropDuplicates removes rows identical to an earlier row
func (t *Table) DropDuplicates() {
	seen := make(map[string]struct{}, len(t.Rows))
	_ = t.FilterRows(func(row Row) (bool, error) {
		key := strings.Join(row.cells, "\x1f")
		if _, dup := seen[key]; dup {
			return false, nil
		}
		seen[key] = struct{}{}
		return true, nil
	})
}

// Row is a read view over one table row
type Row struct {
	table *Table
	cells []string
}

// Get returns the cell in column or a MissingColumnError
func (r Row) Get(column string) (string, error) {
	idx, err := r.table.Index(column)
	if err != nil {
		return "", err
	}
	return r.cells[idx], nil
}
