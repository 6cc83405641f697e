// Package plan holds the joint work plan domain model and the change
// tracker that compares an edited slice of the plan against its
// baseline, producing audit entries and master-table updates.
//
// Cell values are display strings end to end. Comparison and audit
// text are defined over the string representation of a value, so
// "100" and "100.0" are distinct even when they denote the same
// number. DisplayString is the canonical rendering for values that
// arrive as typed JSON.
package plan

import (
	"fmt"
	"sort"
	"strconv"
)

// Table is an ordered set of columns plus an ordered set of rows.
// Row identity is the row's index in the master table at fetch time
// and survives filtering, so an edited subset can be mapped back onto
// the master rows it came from.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Row is one plan record. Cells are aligned with the owning table's
// Columns slice.
type Row struct {
	ID    int      `json:"id"`
	Cells []string `json:"cells"`
}

// NewTable returns an empty table with the given column set.
func NewTable(columns ...string) Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return Table{Columns: cols, Rows: []Row{}}
}

// ColumnIndex returns the position of the named column, or -1 when the
// table has no such column.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table contains the named column.
func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Value returns the cell under the named column for the given row, or
// the empty string when the column is absent or the row is short.
func (t Table) Value(r Row, column string) string {
	i := t.ColumnIndex(column)
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// RowByID returns the row carrying the given identity.
func (t Table) RowByID(id int) (Row, bool) {
	for _, r := range t.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// FilterRows returns a new table containing the rows keep accepts.
// Row identities are preserved; the column set is shared structurally
// with the receiver and must be treated as read-only by the caller.
func (t Table) FilterRows(keep func(Row) bool) Table {
	out := Table{Columns: t.Columns, Rows: []Row{}}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// RowsForValue returns the subset of rows whose cell under column
// equals value. Used to scope a table to a single agency.
func (t Table) RowsForValue(column, value string) Table {
	return t.FilterRows(func(r Row) bool {
		return t.Value(r, column) == value
	})
}

// DistinctValues returns the sorted set of non-empty values stored
// under the named column. An absent column yields an empty slice.
func (t Table) DistinctValues(column string) []string {
	seen := make(map[string]struct{})
	for _, r := range t.Rows {
		v := t.Value(r, column)
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the table. Mutating the copy never
// affects the receiver.
func (t Table) Clone() Table {
	out := Table{
		Columns: make([]string, len(t.Columns)),
		Rows:    make([]Row, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	cells := make([]string, len(r.Cells))
	copy(cells, r.Cells)
	return Row{ID: r.ID, Cells: cells}
}

// IsEmpty reports whether the table has neither columns nor rows.
func (t Table) IsEmpty() bool {
	return len(t.Columns) == 0 && len(t.Rows) == 0
}

// DisplayString renders a value decoded from JSON as the display
// string the tracker compares and the audit log records. Strings pass
// through unchanged, null becomes the empty string, and numbers drop
// any trailing zero fraction ("250", not "250.000000").
func DisplayString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
