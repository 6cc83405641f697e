package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(&config.SQLiteStoreConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTable() plan.Table {
	return plan.Table{
		Columns: []string{"Outcome", "Agency", "Activity"},
		Rows: []plan.Row{
			{ID: 0, Cells: []string{"Outcome 1", "WHO", "Vaccination drive"}},
			{ID: 1, Cells: []string{"Outcome 1", "UNICEF", "School kits, phase 2"}},
		},
	}
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New(&config.SQLiteStoreConfig{Path: ""})
	if err == nil {
		t.Error("New() = nil error, want error for missing path")
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "jwp.db")
	s, err := New(&config.SQLiteStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestFetchTable_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchTable(context.Background(), "Sheet1")
	if !errors.Is(err, store.ErrTableNotFound) {
		t.Errorf("FetchTable() error = %v, want ErrTableNotFound", err)
	}
}

func TestReplaceTable_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := sampleTable()

	if err := s.ReplaceTable(ctx, "Sheet1", want); err != nil {
		t.Fatalf("ReplaceTable() error: %v", err)
	}

	got, err := s.FetchTable(ctx, "Sheet1")
	if err != nil {
		t.Fatalf("FetchTable() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FetchTable() = %+v, want %+v", got, want)
	}
}

func TestReplaceTable_Overwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTable(ctx, "Sheet1", sampleTable()); err != nil {
		t.Fatal("ReplaceTable:", err)
	}

	smaller := plan.Table{
		Columns: []string{"Agency", "Activity"},
		Rows: []plan.Row{
			{ID: 0, Cells: []string{"UNDP", "Governance workshop"}},
		},
	}
	if err := s.ReplaceTable(ctx, "Sheet1", smaller); err != nil {
		t.Fatal("ReplaceTable:", err)
	}

	got, err := s.FetchTable(ctx, "Sheet1")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}
	if len(got.Rows) != 1 {
		t.Errorf("row count after overwrite = %d, want 1", len(got.Rows))
	}
	if !reflect.DeepEqual(got.Columns, smaller.Columns) {
		t.Errorf("Columns = %v, want %v", got.Columns, smaller.Columns)
	}
}

func TestReplaceTable_HeaderOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty := plan.Table{Columns: []string{"Outcome", "Agency"}}
	if err := s.ReplaceTable(ctx, "Sheet1", empty); err != nil {
		t.Fatal("ReplaceTable:", err)
	}

	got, err := s.FetchTable(ctx, "Sheet1")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}
	if !reflect.DeepEqual(got.Columns, empty.Columns) {
		t.Errorf("Columns = %v, want %v", got.Columns, empty.Columns)
	}
	if len(got.Rows) != 0 {
		t.Errorf("Rows = %+v, want none", got.Rows)
	}
}

func TestAppendRow_CreatesTableWithHeader(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	header := []string{"Timestamp", "User Name", "Changes"}
	row := []string{"2026-08-20 10:00:00", "Dana", "first entry"}
	if err := s.AppendRow(ctx, "Audit_Log", header, row); err != nil {
		t.Fatalf("AppendRow() error: %v", err)
	}

	got, err := s.FetchTable(ctx, "Audit_Log")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}
	if !reflect.DeepEqual(got.Columns, header) {
		t.Errorf("Columns = %v, want %v", got.Columns, header)
	}
	if len(got.Rows) != 1 || !reflect.DeepEqual(got.Rows[0].Cells, row) {
		t.Errorf("Rows = %+v, want one row %v", got.Rows, row)
	}
}

func TestAppendRow_AppendsToExistingTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	header := []string{"Timestamp", "User Name", "Changes"}
	if err := s.AppendRow(ctx, "Audit_Log", header, []string{"t1", "Dana", "first"}); err != nil {
		t.Fatal("AppendRow:", err)
	}
	if err := s.AppendRow(ctx, "Audit_Log", header, []string{"t2", "Omar", "second"}); err != nil {
		t.Fatal("AppendRow:", err)
	}

	got, err := s.FetchTable(ctx, "Audit_Log")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(got.Rows))
	}
	if got.Rows[1].Cells[1] != "Omar" {
		t.Errorf("second row = %v, want Omar entry", got.Rows[1].Cells)
	}
}

func TestTables_AreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTable(ctx, "Sheet1", sampleTable()); err != nil {
		t.Fatal("ReplaceTable:", err)
	}
	header := []string{"Timestamp", "Changes"}
	if err := s.AppendRow(ctx, "Audit_Log", header, []string{"t1", "edit"}); err != nil {
		t.Fatal("AppendRow:", err)
	}

	master, err := s.FetchTable(ctx, "Sheet1")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}
	audit, err := s.FetchTable(ctx, "Audit_Log")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}

	if len(master.Rows) != 2 {
		t.Errorf("master rows = %d, want 2", len(master.Rows))
	}
	if len(audit.Rows) != 1 {
		t.Errorf("audit rows = %d, want 1", len(audit.Rows))
	}
	if reflect.DeepEqual(master.Columns, audit.Columns) {
		t.Error("master and audit tables share columns; expected isolation")
	}
}

func TestReopen_PersistsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwp.db")
	ctx := context.Background()
	want := sampleTable()

	s1, err := New(&config.SQLiteStoreConfig{Path: path})
	if err != nil {
		t.Fatal("New:", err)
	}
	if err := s1.ReplaceTable(ctx, "Sheet1", want); err != nil {
		t.Fatal("ReplaceTable:", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal("Close:", err)
	}

	s2, err := New(&config.SQLiteStoreConfig{Path: path})
	if err != nil {
		t.Fatal("New:", err)
	}
	defer s2.Close()

	got, err := s2.FetchTable(ctx, "Sheet1")
	if err != nil {
		t.Fatal("FetchTable:", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FetchTable() after reopen = %+v, want %+v", got, want)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestClose(t *testing.T) {
	s, err := New(&config.SQLiteStoreConfig{Path: ":memory:"})
	if err != nil {
		t.Fatal("New:", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
