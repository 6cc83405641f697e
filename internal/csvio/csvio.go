// Package csvio converts plan tables to and from CSV and validates
// admin-uploaded master files. Import is always a full-table replace,
// never a merge; export is a direct serialization of the stored table.
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
)

// utf8BOM is stripped from uploads; spreadsheet tools routinely prepend it.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ValidationError describes a rejected upload. Validation failures are
// reported to the actor and the import is not applied; nothing retries.
type ValidationError struct {
	Reason         string
	MissingColumns []string
}

func (e *ValidationError) Error() string {
	if len(e.MissingColumns) > 0 {
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.MissingColumns, ", "))
	}
	return e.Reason
}

// Encode serializes the table as UTF-8 CSV: one header row, one row
// per record, comma separated.
func Encode(t plan.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range t.Rows {
		if err := w.Write(r.Cells); err != nil {
			return nil, fmt.Errorf("failed to write CSV row %d: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses CSV into a table. The first record is the header; data
// rows receive sequential identities starting at zero, matching their
// position in the file. Empty input decodes to an empty table.
func Decode(r io.Reader) (plan.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return plan.Table{}, nil
	}

	cr := csv.NewReader(bytes.NewReader(data))
	records, err := cr.ReadAll()
	if err != nil {
		return plan.Table{}, &ValidationError{Reason: fmt.Sprintf("malformed CSV: %v", err)}
	}
	if len(records) == 0 {
		return plan.Table{}, nil
	}

	t := plan.Table{Columns: records[0], Rows: make([]plan.Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		t.Rows = append(t.Rows, plan.Row{ID: i, Cells: rec})
	}
	return t, nil
}

// optionalColumnDefaults lists the columns an import may omit and the
// value every row receives when one is absent. Missing columns are
// appended after the uploaded ones, in this order.
var optionalColumnDefaults = []struct {
	Name    string
	Default string
}{
	{"End Date", ""},
	{"Budget Spent", "0"},
	{"Progress / Achievement to Date", ""},
	{"Last Updated", ""},
}

// ImportResult reports what an accepted upload contains.
type ImportResult struct {
	Table    plan.Table
	RowCount int
	Columns  []string
	// Filled lists optional columns that were absent from the upload
	// and defaulted for every row.
	Filled []string
}

// ImportMaster validates an uploaded master CSV and normalizes it for
// storage. The file must contain every column in required; optional
// columns are appended with their defaults when absent. The resulting
// table replaces the master wholesale.
func ImportMaster(r io.Reader, required []string) (ImportResult, error) {
	t, err := Decode(r)
	if err != nil {
		return ImportResult{}, err
	}
	if len(t.Columns) == 0 {
		return ImportResult{}, &ValidationError{Reason: "uploaded file has no header row"}
	}

	var missing []string
	for _, col := range required {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return ImportResult{}, &ValidationError{Reason: "uploaded CSV is missing required columns", MissingColumns: missing}
	}

	var filled []string
	for _, opt := range optionalColumnDefaults {
		if t.HasColumn(opt.Name) {
			continue
		}
		t.Columns = append(t.Columns, opt.Name)
		for i := range t.Rows {
			t.Rows[i].Cells = append(t.Rows[i].Cells, opt.Default)
		}
		filled = append(filled, opt.Name)
	}

	return ImportResult{
		Table:    t,
		RowCount: len(t.Rows),
		Columns:  t.Columns,
		Filled:   filled,
	}, nil
}
