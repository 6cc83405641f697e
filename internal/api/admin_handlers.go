// admin_handlers.go implements the admin surface: the audit log view and
// whole-table CSV import/export.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/csvio"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

// exportFilename is the attachment name the original tool used for
// downloads; existing operator scripts key on it.
const exportFilename = "JWP_master_data_updated.csv"

// @Summary      Audit log
// @Description  Returns audit entries newest-first. The timestamp format is fixed-width, so a string sort is chronological.
// @Tags         Admin
// @Produce      json
// @Param        limit  query  int  false  "Maximum entries to return"
// @Success      200  {object}  map[string]interface{}  "columns, rows, total"
// @Failure      403  {object}  map[string]interface{}  "Caller is not an admin"
// @Failure      502  {object}  map[string]interface{}  "Record store failure"
// @Router       /api/v1/admin/audit [get]
// AuditLogHandler lists audit entries, newest first
func AuditLogHandler(st store.TableStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := st.FetchTable(c.Request.Context(), cfg.Store.AuditTable)
		if err != nil {
			if errors.Is(err, store.ErrTableNotFound) {
				// Nothing has been saved yet; an empty log, not an error.
				c.JSON(http.StatusOK, gin.H{"columns": plan.AuditHeader(), "rows": []plan.Row{}, "total": 0})
				return
			}
			respondStoreError(c, err)
			return
		}

		rows := make([]plan.Row, len(t.Rows))
		copy(rows, t.Rows)
		if ti := t.ColumnIndex(plan.AuditTimestampColumn); ti >= 0 {
			sort.SliceStable(rows, func(i, j int) bool {
				return rows[i].Cells[ti] > rows[j].Cells[ti]
			})
		}

		total := len(rows)
		if limitStr := c.Query("limit"); limitStr != "" {
			if limit, err := strconv.Atoi(limitStr); err == nil && limit >= 0 && limit < len(rows) {
				rows = rows[:limit]
			}
		}

		c.JSON(http.StatusOK, gin.H{"columns": t.Columns, "rows": rows, "total": total})
	}
}

// @Summary      Export work plan
// @Description  Serves the master table as a CSV attachment, exactly as stored.
// @Tags         Admin
// @Produce      text/csv
// @Success      200  {string}  string  "CSV body"
// @Failure      403  {object}  map[string]interface{}  "Caller is not an admin"
// @Failure      502  {object}  map[string]interface{}  "Record store failure"
// @Router       /api/v1/admin/export [get]
// ExportHandler serves the master table as a CSV download
func ExportHandler(st store.TableStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		master, err := fetchMaster(c.Request.Context(), st, cfg)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		data, err := csvio.Encode(master)
		if err != nil {
			slog.Error("master export failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode work plan"})
			return
		}

		telemetry.CSVExportsTotal.Inc()
		slog.Info("master table exported", "rows", len(master.Rows))
		c.Header("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
	}
}

// @Summary      Import work plan
// @Description  Validates an uploaded master CSV and, with confirm=true, replaces the whole table. Without it, returns a dry-run preview. Required columns must be present; absent optional columns are filled with defaults. Import is always a full overwrite, never a merge.
// @Tags         Admin
// @Accept       multipart/form-data
// @Produce      json
// @Param        file     formData  file    true   "Master CSV upload"
// @Param        confirm  query     string  false  "Set to true to apply the replacement"
// @Success      200  {object}  map[string]interface{}  "dry_run, rows, columns, filled_defaults, message"
// @Failure      400  {object}  map[string]interface{}  "Missing file or failed validation"
// @Failure      403  {object}  map[string]interface{}  "Caller is not an admin"
// @Failure      502  {object}  map[string]interface{}  "Record store failure"
// @Router       /api/v1/admin/import [post]
// ImportHandler validates and applies a master CSV upload
func ImportHandler(st store.TableStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			telemetry.CSVImportsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "A CSV upload named 'file' is required"})
			return
		}
		defer file.Close()

		result, err := csvio.ImportMaster(file, cfg.Plan.RequiredColumns)
		if err != nil {
			var ve *csvio.ValidationError
			if errors.As(err, &ve) {
				telemetry.CSVImportsTotal.WithLabelValues("rejected").Inc()
				slog.Warn("import rejected", "filename", header.Filename, "error", ve)
				resp := gin.H{"error": ve.Error()}
				if len(ve.MissingColumns) > 0 {
					resp["missing_columns"] = ve.MissingColumns
				}
				c.JSON(http.StatusBadRequest, resp)
				return
			}
			telemetry.CSVImportsTotal.WithLabelValues("error").Inc()
			slog.Error("import read failed", "filename", header.Filename, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}

		filled := result.Filled
		if filled == nil {
			filled = []string{}
		}

		if c.Query("confirm") != "true" {
			telemetry.CSVImportsTotal.WithLabelValues("dry_run").Inc()
			c.JSON(http.StatusOK, gin.H{
				"dry_run":         true,
				"rows":            result.RowCount,
				"columns":         result.Columns,
				"filled_defaults": filled,
				"message":         "Validation passed; re-submit with confirm=true to replace the work plan",
			})
			return
		}

		if err := st.ReplaceTable(c.Request.Context(), cfg.Store.MasterTable, result.Table); err != nil {
			telemetry.CSVImportsTotal.WithLabelValues("error").Inc()
			respondStoreError(c, err)
			return
		}

		telemetry.CSVImportsTotal.WithLabelValues("applied").Inc()
		slog.Info("master table replaced by import",
			"filename", header.Filename,
			"rows", result.RowCount,
			"filled_defaults", filled,
		)
		c.JSON(http.StatusOK, gin.H{
			"dry_run":         false,
			"rows":            result.RowCount,
			"columns":         result.Columns,
			"filled_defaults": filled,
			"message":         "Work plan replaced",
		})
	}
}
