// plan_handlers.go implements the work plan view and the stakeholder save
// cycle: re-fetch the master table, overlay the submitted editable cells,
// detect changes, persist, and append the audit trail.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeryani-tests/joint-work-plan-app/internal/audit"
	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/middleware"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

// savedRow is one submitted row of a save: the master row identity plus the
// edited cell values keyed by column name. Values arrive as whatever JSON
// type the front end used and are canonicalized to display strings.
type savedRow struct {
	ID    int            `json:"id"`
	Cells map[string]any `json:"cells"`
}

// emptyMaster returns the canonical empty work plan table used before the
// first import: required columns, then the editable columns, then the
// timestamp column.
func emptyMaster(cfg *config.Config) plan.Table {
	var cols []string
	seen := make(map[string]bool)
	add := func(names ...string) {
		for _, n := range names {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			cols = append(cols, n)
		}
	}
	add(cfg.Plan.RequiredColumns...)
	add(cfg.Plan.AgencyColumn, cfg.Plan.ActivityColumn)
	add(cfg.Plan.EditableColumns...)
	add(cfg.Plan.TimestampColumn)
	return plan.NewTable(cols...)
}

// fetchMaster loads the master table, substituting the canonical empty table
// when it does not exist yet. An unprovisioned store is not an error; the
// admin bootstraps it with the first import.
func fetchMaster(ctx context.Context, st store.TableStore, cfg *config.Config) (plan.Table, error) {
	t, err := st.FetchTable(ctx, cfg.Store.MasterTable)
	if err != nil {
		if errors.Is(err, store.ErrTableNotFound) {
			return emptyMaster(cfg), nil
		}
		return plan.Table{}, err
	}
	return t, nil
}

// respondStoreError maps a record store failure onto the API error contract:
// absent tables are 404, everything else is a 502 carrying the backend's own
// message.
func respondStoreError(c *gin.Context, err error) {
	slog.Error("record store operation failed", "path", c.FullPath(), "error", err)
	status := http.StatusBadGateway
	if errors.Is(err, store.ErrTableNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// newTracker builds the change tracker from the configured column wiring.
func newTracker(cfg *config.Config) *plan.Tracker {
	tr := plan.NewTracker(cfg.Plan.EditableColumns)
	tr.LabelColumn = cfg.Plan.ActivityColumn
	tr.TimestampColumn = cfg.Plan.TimestampColumn
	tr.TimestampLayout = cfg.Plan.TimestampFormat
	return tr
}

// @Summary      Work plan view
// @Description  Returns the caller's view of the work plan. Stakeholders see their own agency's rows; admins see the whole table, optionally filtered with ?agency=.
// @Tags         Plan
// @Produce      json
// @Param        agency  query  string  false  "Agency filter (admin sessions only)"
// @Success      200  {object}  map[string]interface{}  "columns, rows: [{id, cells}], editable_columns, agency"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid session token"
// @Failure      502  {object}  map[string]interface{}  "Record store failure"
// @Router       /api/v1/plan [get]
// PlanHandler returns the caller's slice of the work plan
func PlanHandler(st store.TableStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		master, err := fetchMaster(c.Request.Context(), st, cfg)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		// Stakeholders are pinned to their session agency; admins choose.
		agency := id.Agency
		if id.IsAdmin() {
			agency = c.Query("agency")
		}

		view := master
		if agency != "" {
			view = master.RowsForValue(cfg.Plan.AgencyColumn, agency)
		}

		rows := view.Rows
		if rows == nil {
			rows = []plan.Row{}
		}

		c.JSON(http.StatusOK, gin.H{
			"columns":          view.Columns,
			"rows":             rows,
			"editable_columns": cfg.Plan.EditableColumns,
			"agency":           agency,
		})
	}
}

// @Summary      Save work plan edits
// @Description  Stakeholder-only save cycle. The body carries the edited rows as [{id, cells}] with cells keyed by editable column name. The server re-fetches the master table, computes the changed rows, stamps them, replaces the table, and appends one audit entry per changed row.
// @Tags         Plan
// @Accept       json
// @Produce      json
// @Param        body  body  object  true  "[{id, cells}]"
// @Success      200  {object}  map[string]interface{}  "changes: per-row field deltas, saved_at; warning when the audit append failed"
// @Failure      400  {object}  map[string]interface{}  "Unknown or non-editable column"
// @Failure      403  {object}  map[string]interface{}  "Admin sessions cannot save"
// @Failure      409  {object}  map[string]interface{}  "Row identity not in the caller's view"
// @Failure      502  {object}  map[string]interface{}  "Record store failure"
// @Router       /api/v1/plan [put]
// SavePlanHandler runs the stakeholder save cycle
func SavePlanHandler(st store.TableStore, cfg *config.Config, mirror *audit.MultiMirror) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome := "error"
		defer func() { telemetry.PlanSavesTotal.WithLabelValues(outcome).Inc() }()

		id, ok := middleware.IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if id.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin sessions are read-only; replace data via import"})
			return
		}

		var submitted []savedRow
		if err := c.ShouldBindJSON(&submitted); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		editable := make(map[string]bool, len(cfg.Plan.EditableColumns))
		for _, col := range cfg.Plan.EditableColumns {
			editable[col] = true
		}

		// Re-fetch the master table so the diff runs against what is stored
		// now, not against whatever the client last saw.
		ctx := c.Request.Context()
		master, err := fetchMaster(ctx, st, cfg)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		baseline := master.RowsForValue(cfg.Plan.AgencyColumn, id.Agency)
		edited := baseline.Clone()

		rowIndex := make(map[int]int, len(edited.Rows))
		for i, r := range edited.Rows {
			rowIndex[r.ID] = i
		}

		for _, sr := range submitted {
			i, ok := rowIndex[sr.ID]
			if !ok {
				c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("row %d is not part of the %s work plan", sr.ID, id.Agency)})
				return
			}
			for col, v := range sr.Cells {
				if !editable[col] {
					if master.HasColumn(col) {
						c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("column %q is not editable", col)})
					} else {
						c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown column %q", col)})
					}
					return
				}
				ci := edited.ColumnIndex(col)
				if ci < 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown column %q", col)})
					return
				}
				edited.Rows[i].Cells[ci] = plan.DisplayString(v)
			}
		}

		tracker := newTracker(cfg)
		changes, err := tracker.ComputeChanges(baseline, edited)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if len(changes) == 0 {
			outcome = "no_changes"
			c.JSON(http.StatusOK, gin.H{"changes": []plan.RowChange{}, "message": "No changes detected"})
			return
		}

		// One wall-clock reading stamps the whole batch: the rows, the
		// audit entries, and the response all agree.
		now := time.Now()
		updated, err := tracker.ApplyChanges(master, changes, now)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		if err := st.ReplaceTable(ctx, cfg.Store.MasterTable, updated); err != nil {
			respondStoreError(c, err)
			return
		}

		// The master table is already persisted; audit problems from here
		// on are reported as a warning, never as a failed save.
		actor := plan.Actor{Name: id.Name, Email: id.Email, Agency: id.Agency}
		records := tracker.ToAuditEntries(changes, actor, now)
		auditFailed := false
		for _, rec := range records {
			row, err := rec.AuditRow()
			if err == nil {
				err = st.AppendRow(ctx, cfg.Store.AuditTable, plan.AuditHeader(), row)
			}
			if err != nil {
				auditFailed = true
				telemetry.AuditWriteFailuresTotal.Inc()
				slog.Warn("audit log append failed", "activity", rec.Label, "row_id", rec.RowID, "error", err)
			}
		}
		if mirror != nil {
			mirror.ShipAll(ctx, records)
		}

		outcome = "applied"
		telemetry.RowChangesTotal.Add(float64(len(changes)))
		slog.Info("work plan saved",
			"agency", id.Agency,
			"email", id.Email,
			"rows_changed", len(changes),
			"audit_failed", auditFailed,
		)

		resp := gin.H{
			"changes":  changes,
			"saved_at": now.Format(tracker.TimestampLayout),
		}
		if auditFailed {
			resp["warning"] = "the change was saved but writing the audit log failed; see the server log"
		}
		c.JSON(http.StatusOK, resp)
	}
}
