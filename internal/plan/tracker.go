package plan

import (
	"fmt"
	"time"
)

// Column names and formats of the canonical work plan layout. The
// master table an admin bootstraps via CSV import always carries these
// eight columns; deployments can rename them through configuration.
const (
	DefaultAgencyColumn    = "Agency"
	DefaultLabelColumn     = "Activity"
	DefaultTimestampColumn = "Last Updated"
	DefaultTimestampLayout = "2006-01-02 15:04:05"
)

// CanonicalColumns returns the full default column layout of the
// master table, in order.
func CanonicalColumns() []string {
	return []string{
		"Outcome",
		"Sub-Output",
		"Agency",
		"Activity",
		"End Date",
		"Budget Spent",
		"Progress / Achievement to Date",
		"Last Updated",
	}
}

// DefaultEditableColumns returns the columns a stakeholder may change.
func DefaultEditableColumns() []string {
	return []string{"End Date", "Budget Spent", "Progress / Achievement to Date"}
}

// DefaultRequiredColumns returns the columns a CSV import must supply.
func DefaultRequiredColumns() []string {
	return []string{"Outcome", "Sub-Output", "Agency", "Activity"}
}

// FieldDelta is one field's before and after display values.
type FieldDelta struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// RowChange is the detected edit of a single row: its identity, the
// label shown in the audit log, and the editable fields that differ.
type RowChange struct {
	ID     int                   `json:"id"`
	Label  string                `json:"label"`
	Fields map[string]FieldDelta `json:"fields"`
}

// Tracker detects edits to a plan subset relative to its baseline and
// folds them back into the master table. It is stateless; every method
// is a pure function of its arguments.
type Tracker struct {
	// Editable lists the columns whose differences are detected and
	// applied. Columns outside this set are never compared or reported,
	// regardless of what the edited table contains.
	Editable []string

	// LabelColumn names the column whose baseline value labels each
	// change in the audit log.
	LabelColumn string

	// TimestampColumn is stamped on every changed row by ApplyChanges.
	TimestampColumn string

	// TimestampLayout formats batch timestamps for both the stamp
	// column and audit entries.
	TimestampLayout string
}

// NewTracker returns a tracker for the given editable column set with
// the canonical label and timestamp column wiring.
func NewTracker(editable []string) *Tracker {
	cols := make([]string, len(editable))
	copy(cols, editable)
	return &Tracker{
		Editable:        cols,
		LabelColumn:     DefaultLabelColumn,
		TimestampColumn: DefaultTimestampColumn,
		TimestampLayout: DefaultTimestampLayout,
	}
}

// ComputeChanges compares the edited table against its baseline and
// returns one RowChange per row with at least one differing editable
// field. Values compare by display-string equality. Result order
// follows the edited table's row order and is deterministic.
//
// Baseline and edited must carry identical column sequences and
// identical row identity sets; any divergence fails with
// ErrShapeMismatch and no partial result.
func (tr *Tracker) ComputeChanges(baseline, edited Table) ([]RowChange, error) {
	if err := sameColumns(baseline, edited); err != nil {
		return nil, err
	}

	base := make(map[int]Row, len(baseline.Rows))
	for _, r := range baseline.Rows {
		if _, dup := base[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate row id %d in baseline", ErrShapeMismatch, r.ID)
		}
		base[r.ID] = r
	}

	seen := make(map[int]struct{}, len(edited.Rows))
	changes := []RowChange{}
	for _, row := range edited.Rows {
		if _, dup := seen[row.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate row id %d in edited table", ErrShapeMismatch, row.ID)
		}
		seen[row.ID] = struct{}{}

		orig, ok := base[row.ID]
		if !ok {
			return nil, fmt.Errorf("%w: edited table has row id %d not present in baseline", ErrShapeMismatch, row.ID)
		}

		fields := make(map[string]FieldDelta)
		for _, col := range tr.Editable {
			if !edited.HasColumn(col) {
				continue
			}
			before := baseline.Value(orig, col)
			after := edited.Value(row, col)
			if before != after {
				fields[col] = FieldDelta{Before: before, After: after}
			}
		}
		if len(fields) > 0 {
			changes = append(changes, RowChange{
				ID:     row.ID,
				Label:  baseline.Value(orig, tr.LabelColumn),
				Fields: fields,
			})
		}
	}

	for _, r := range baseline.Rows {
		if _, ok := seen[r.ID]; !ok {
			return nil, fmt.Errorf("%w: edited table missing row id %d present in baseline", ErrShapeMismatch, r.ID)
		}
	}

	return changes, nil
}

// ApplyChanges returns a copy of master with each change's fields set
// to their after values and the timestamp column stamped with now.
// Cells not named by a change are byte-identical to the input. The
// caller owns the returned table and its persistence.
//
// A change referencing a row identity or column the master does not
// have fails with ErrShapeMismatch.
func (tr *Tracker) ApplyChanges(master Table, changes []RowChange, now time.Time) (Table, error) {
	out := master.Clone()

	index := make(map[int]int, len(out.Rows))
	for i, r := range out.Rows {
		index[r.ID] = i
	}
	tsIdx := out.ColumnIndex(tr.TimestampColumn)
	stamp := now.Format(tr.TimestampLayout)

	for _, ch := range changes {
		if len(ch.Fields) == 0 {
			continue
		}
		ri, ok := index[ch.ID]
		if !ok {
			return Table{}, fmt.Errorf("%w: master table has no row id %d", ErrShapeMismatch, ch.ID)
		}
		for col, delta := range ch.Fields {
			ci := out.ColumnIndex(col)
			if ci < 0 {
				return Table{}, fmt.Errorf("%w: master table has no column %q", ErrShapeMismatch, col)
			}
			out.Rows[ri].Cells[ci] = delta.After
		}
		if tsIdx >= 0 {
			out.Rows[ri].Cells[tsIdx] = stamp
		}
	}

	return out, nil
}

// sameColumns verifies the two tables carry the same column sequence.
func sameColumns(a, b Table) error {
	if len(a.Columns) != len(b.Columns) {
		return fmt.Errorf("%w: baseline has %d columns, edited has %d", ErrShapeMismatch, len(a.Columns), len(b.Columns))
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return fmt.Errorf("%w: column %d is %q in baseline but %q in edited table", ErrShapeMismatch, i, a.Columns[i], b.Columns[i])
		}
	}
	return nil
}
