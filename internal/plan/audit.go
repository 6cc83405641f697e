package plan

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditTimestampColumn is the first column of the audit table; the
// admin view sorts on it, newest first.
const AuditTimestampColumn = "Timestamp"

// AuditHeader returns the fixed header of the audit log table. The
// store creates the table with this header on first append.
func AuditHeader() []string {
	return []string{"Timestamp", "User Name", "User Email", "Agency", "Activity", "Changes"}
}

// Actor identifies who made an edit. Admin sessions use the fixed
// identity Admin/admin@system/All.
type Actor struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Agency string `json:"agency"`
}

// ChangeRecord is one durable audit entry: a single row's detected
// change with actor attribution. Timestamp is pre-formatted display
// text; the audit log is a human-readable record, not a reconstructable
// diff.
type ChangeRecord struct {
	Timestamp string                `json:"timestamp"`
	Actor     Actor                 `json:"actor"`
	Label     string                `json:"label"`
	RowID     int                   `json:"row_id"`
	Fields    map[string]FieldDelta `json:"fields"`
}

// ToAuditEntries attaches actor metadata and a single batch timestamp
// to each change. Every entry in one batch carries the same stamp.
func (tr *Tracker) ToAuditEntries(changes []RowChange, actor Actor, now time.Time) []ChangeRecord {
	stamp := now.Format(tr.TimestampLayout)
	out := make([]ChangeRecord, 0, len(changes))
	for _, ch := range changes {
		out = append(out, ChangeRecord{
			Timestamp: stamp,
			Actor:     actor,
			Label:     ch.Label,
			RowID:     ch.ID,
			Fields:    ch.Fields,
		})
	}
	return out
}

// AuditRow serializes the record as one row of the audit table,
// aligned with AuditHeader. The Changes cell is a JSON object mapping
// each changed column to a "from 'x' to 'y'" description, with keys in
// sorted order.
func (r ChangeRecord) AuditRow() ([]string, error) {
	desc := make(map[string]string, len(r.Fields))
	for col, d := range r.Fields {
		desc[col] = fmt.Sprintf("from '%s' to '%s'", d.Before, d.After)
	}
	b, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change descriptions: %w", err)
	}
	return []string{r.Timestamp, r.Actor.Name, r.Actor.Email, r.Actor.Agency, r.Label, string(b)}, nil
}
