// Package main is a diagnostic tool for testing table store connectivity and
// inspecting live work plan data. It opens the store named in the
// configuration, fetches the master and audit tables, and prints a summary to
// stdout. The binary exits with a non-zero code on any failure so it can be
// embedded in health checks or CI/CD pipeline steps to gate deployments on a
// reachable, populated store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"

	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/azure"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/file"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/gcs"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/postgres"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/s3"
	_ "github.com/yeryani-tests/joint-work-plan-app/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Getenv("JWP_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		log.Fatalf("Ping failed: %v", err)
	}
	fmt.Printf("Store reachable (backend: %s)\n", cfg.Store.Backend)

	// Check master table
	fmt.Println("\n=== MASTER TABLE ===")
	master, err := st.FetchTable(ctx, cfg.Store.MasterTable)
	if err != nil {
		log.Fatalf("Fetch failed: %v", err)
	}
	fmt.Printf("Table: %s (%d columns, %d rows)\n", cfg.Store.MasterTable, len(master.Columns), len(master.Rows))
	fmt.Printf("Columns: %s\n", strings.Join(master.Columns, ", "))

	for _, agency := range master.DistinctValues(cfg.Plan.AgencyColumn) {
		fmt.Printf("Agency: %s (%d rows)\n", agency, len(master.RowsForValue(cfg.Plan.AgencyColumn, agency).Rows))
	}
	if len(master.Rows) == 0 {
		fmt.Println("No rows found!")
	}

	// Check audit log
	fmt.Println("\n=== AUDIT LOG ===")
	auditLog, err := st.FetchTable(ctx, cfg.Store.AuditTable)
	if err != nil {
		if errors.Is(err, store.ErrTableNotFound) {
			fmt.Println("No audit entries found!")
			return
		}
		log.Fatalf("Fetch failed: %v", err)
	}
	fmt.Printf("Table: %s (%d rows)\n", cfg.Store.AuditTable, len(auditLog.Rows))
	if len(auditLog.Rows) == 0 {
		fmt.Println("No audit entries found!")
	}
}
