package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
)

func auditFixture() plan.Table {
	t := plan.NewTable(plan.AuditHeader()...)
	t.Rows = []plan.Row{
		{ID: 0, Cells: []string{"2026-01-05 10:00:00", "Amina Yusuf", "amina@who.int", "WHO", "Vaccination drive", `{"Budget Spent":"from '9000' to '10000'"}`}},
		{ID: 1, Cells: []string{"2026-03-14 09:30:00", "Joon Park", "joon@unicef.org", "UNICEF", "School kits, phase 2", `{"End Date":"from '' to '2026-12-15'"}`}},
		{ID: 2, Cells: []string{"2026-02-01 16:45:00", "Amina Yusuf", "amina@who.int", "WHO", "Cold chain upgrade", `{"Budget Spent":"from '3500' to '4000'"}`}},
	}
	return t
}

type auditResponse struct {
	Columns []string `json:"columns"`
	Rows    []struct {
		ID    int      `json:"id"`
		Cells []string `json:"cells"`
	} `json:"rows"`
	Total int `json:"total"`
}

// ---------------------------------------------------------------------------
// GET /api/v1/admin/audit
// ---------------------------------------------------------------------------

func TestAuditLogHandler_NewestFirst(t *testing.T) {
	st := fixtureStore()
	st.tables["Audit_Log"] = auditFixture()
	r := newTestRouter(t, st, testConfig())

	w := doRequest(r, http.MethodGet, "/api/v1/admin/audit", adminToken(t), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp auditResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 3 || len(resp.Rows) != 3 {
		t.Fatalf("total = %d, rows = %d, want 3/3", resp.Total, len(resp.Rows))
	}
	want := []string{"2026-03-14 09:30:00", "2026-02-01 16:45:00", "2026-01-05 10:00:00"}
	for i, ts := range want {
		if resp.Rows[i].Cells[0] != ts {
			t.Errorf("rows[%d] timestamp = %q, want %q", i, resp.Rows[i].Cells[0], ts)
		}
	}
}

func TestAuditLogHandler_Limit(t *testing.T) {
	st := fixtureStore()
	st.tables["Audit_Log"] = auditFixture()
	r := newTestRouter(t, st, testConfig())

	w := doRequest(r, http.MethodGet, "/api/v1/admin/audit?limit=2", adminToken(t), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp auditResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(resp.Rows))
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3 (pre-limit count)", resp.Total)
	}
	if resp.Rows[0].Cells[0] != "2026-03-14 09:30:00" {
		t.Errorf("limit must keep the newest entries, got %q first", resp.Rows[0].Cells[0])
	}
}

func TestAuditLogHandler_EmptyLog(t *testing.T) {
	// No save has happened yet, so the audit table does not exist.
	r := newTestRouter(t, fixtureStore(), testConfig())

	w := doRequest(r, http.MethodGet, "/api/v1/admin/audit", adminToken(t), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp auditResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 0 || len(resp.Rows) != 0 {
		t.Errorf("resp = %+v, want an empty log", resp)
	}
	if len(resp.Columns) != 6 {
		t.Errorf("columns = %v, want the fixed audit header", resp.Columns)
	}
}

// ---------------------------------------------------------------------------
// GET /api/v1/admin/export
// ---------------------------------------------------------------------------

func TestExportHandler(t *testing.T) {
	r := newTestRouter(t, fixtureStore(), testConfig())

	w := doRequest(r, http.MethodGet, "/api/v1/admin/export", adminToken(t), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "JWP_master_data_updated.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header plus 3 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Outcome,Sub-Output,Agency,Activity") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.Contains(w.Body.String(), "Vaccination drive") {
		t.Error("export does not carry the row data")
	}
}

func TestExportHandler_EmptyStore(t *testing.T) {
	r := newTestRouter(t, newFakeStore(nil), testConfig())

	w := doRequest(r, http.MethodGet, "/api/v1/admin/export", adminToken(t), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Errorf("lines = %d, want the header only", len(lines))
	}
}

// ---------------------------------------------------------------------------
// POST /api/v1/admin/import
// ---------------------------------------------------------------------------

func csvUpload(t *testing.T, csvBody string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(csvBody)); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(r *gin.Engine, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const importCSV = "Outcome,Sub-Output,Agency,Activity\nHealth,H1,WHO,Vaccination drive\nEducation,E1,UNICEF,School kits\n"

type importResponse struct {
	DryRun         bool     `json:"dry_run"`
	Rows           int      `json:"rows"`
	Columns        []string `json:"columns"`
	FilledDefaults []string `json:"filled_defaults"`
	Message        string   `json:"message"`
}

func TestImportHandler_DryRun(t *testing.T) {
	st := fixtureStore()
	r := newTestRouter(t, st, testConfig())

	body, ct := csvUpload(t, importCSV)
	w := doUpload(r, "/api/v1/admin/import", adminToken(t), body, ct)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp importResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.DryRun {
		t.Error("dry_run = false, want true without confirm")
	}
	if resp.Rows != 2 {
		t.Errorf("rows = %d, want 2", resp.Rows)
	}
	if len(resp.FilledDefaults) != 4 {
		t.Errorf("filled_defaults = %v, want the four optional columns", resp.FilledDefaults)
	}
	if st.replaced != 0 {
		t.Error("dry run must not write to the store")
	}
}

func TestImportHandler_Confirm(t *testing.T) {
	st := fixtureStore()
	r := newTestRouter(t, st, testConfig())

	body, ct := csvUpload(t, importCSV)
	w := doUpload(r, "/api/v1/admin/import?confirm=true", adminToken(t), body, ct)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp importResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DryRun {
		t.Error("dry_run = true on a confirmed import")
	}
	if st.replaced != 1 {
		t.Fatalf("ReplaceTable calls = %d, want 1", st.replaced)
	}

	// The old three-row table is gone; import is an overwrite, not a merge.
	master := st.table("Sheet1")
	if len(master.Rows) != 2 {
		t.Fatalf("stored rows = %d, want 2", len(master.Rows))
	}
	if len(master.Columns) != 8 {
		t.Errorf("stored columns = %v, want required plus filled defaults", master.Columns)
	}
	row0, _ := master.RowByID(0)
	if got := master.Value(row0, "Budget Spent"); got != "0" {
		t.Errorf("Budget Spent default = %q, want 0", got)
	}
}

func TestImportHandler_MissingRequiredColumns(t *testing.T) {
	st := fixtureStore()
	r := newTestRouter(t, st, testConfig())

	body, ct := csvUpload(t, "Outcome,Sub-Output,Activity\nHealth,H1,Vaccination drive\n")
	w := doUpload(r, "/api/v1/admin/import?confirm=true", adminToken(t), body, ct)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Error          string   `json:"error"`
		MissingColumns []string `json:"missing_columns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.MissingColumns) != 1 || resp.MissingColumns[0] != "Agency" {
		t.Errorf("missing_columns = %v, want [Agency]", resp.MissingColumns)
	}
	if st.replaced != 0 {
		t.Error("rejected import must not write to the store")
	}
}

func TestImportHandler_RaggedCSV(t *testing.T) {
	r := newTestRouter(t, fixtureStore(), testConfig())

	body, ct := csvUpload(t, "Outcome,Sub-Output,Agency,Activity\nHealth,H1,WHO\n")
	w := doUpload(r, "/api/v1/admin/import", adminToken(t), body, ct)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}

func TestImportHandler_NoFile(t *testing.T) {
	r := newTestRouter(t, fixtureStore(), testConfig())

	w := doRequest(r, http.MethodPost, "/api/v1/admin/import", adminToken(t), strings.NewReader(`{}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// role gate
// ---------------------------------------------------------------------------

func TestAdminEndpoints_StakeholderForbidden(t *testing.T) {
	r := newTestRouter(t, fixtureStore(), testConfig())
	token := stakeholderToken(t, "WHO")

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/admin/audit"},
		{http.MethodGet, "/api/v1/admin/export"},
		{http.MethodPost, "/api/v1/admin/import"},
	} {
		w := doRequest(r, tc.method, tc.path, token, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tc.method, tc.path, w.Code)
		}
	}
}

func TestAdminEndpoints_NoToken(t *testing.T) {
	r := newTestRouter(t, fixtureStore(), testConfig())

	w := doRequest(r, http.MethodGet, "/api/v1/admin/audit", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
