// Package jobs contains background workers that run on a schedule. The
// snapshot job periodically copies the master and audit tables to local CSV
// files so operators keep restorable history even when the configured store
// has no versioning of its own. Jobs are idempotent; re-running after a
// crash produces the same result as a clean run.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/csvio"
	"github.com/yeryani-tests/joint-work-plan-app/internal/safego"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
	"github.com/yeryani-tests/joint-work-plan-app/pkg/tablehash"
)

// snapshotStampLayout names snapshot files so a lexicographic sort is also a
// chronological sort.
const snapshotStampLayout = "20060102T150405"

// SnapshotJob writes timestamped CSV copies of the configured tables into a
// local directory, each with a .sha256 sidecar, and prunes old copies beyond
// the retention count.
type SnapshotJob struct {
	store  store.TableStore
	tables []string
	dir    string
	keep   int
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSnapshotJob creates a snapshot job covering the given tables.
func NewSnapshotJob(st store.TableStore, tables []string, cfg config.BackupConfig) *SnapshotJob {
	return &SnapshotJob{
		store:  st,
		tables: tables,
		dir:    cfg.Dir,
		keep:   cfg.Keep,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic snapshot loop. The first cycle runs immediately
// so a fresh deployment has a restore point before the first interval
// elapses.
func (j *SnapshotJob) Start(ctx context.Context, interval time.Duration) {
	slog.Info("starting snapshot job", "interval", interval, "dir", j.dir, "tables", j.tables)

	j.wg.Add(1)
	safego.Go(func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopCh:
				slog.Info("snapshot job stopped")
				return
			case <-ctx.Done():
				slog.Info("snapshot job context cancelled")
				return
			}
		}
	})
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (j *SnapshotJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

// RunOnce performs one snapshot cycle over all configured tables. A table
// that fails to snapshot is counted and logged without stopping the rest of
// the cycle.
func (j *SnapshotJob) RunOnce(ctx context.Context) {
	start := time.Now()
	stamp := start.UTC().Format(snapshotStampLayout)

	if err := os.MkdirAll(j.dir, 0750); err != nil {
		slog.Error("snapshot directory unavailable", "dir", j.dir, "error", err)
		for _, table := range j.tables {
			telemetry.SnapshotErrorsTotal.WithLabelValues(table).Inc()
		}
		return
	}

	for _, table := range j.tables {
		if err := j.snapshotTable(ctx, table, stamp); err != nil {
			if errors.Is(err, store.ErrTableNotFound) {
				// Nothing to back up yet; the audit table does not exist
				// until the first save.
				slog.Debug("skipping snapshot of absent table", "table", table)
				continue
			}
			telemetry.SnapshotErrorsTotal.WithLabelValues(table).Inc()
			slog.Error("table snapshot failed", "table", table, "error", err)
			continue
		}

		if err := j.prune(table); err != nil {
			slog.Warn("snapshot pruning failed", "table", table, "error", err)
		}
	}

	telemetry.SnapshotDuration.Observe(time.Since(start).Seconds())
}

func (j *SnapshotJob) snapshotTable(ctx context.Context, table, stamp string) error {
	t, err := j.store.FetchTable(ctx, table)
	if err != nil {
		return err
	}

	data, err := csvio.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode table %s: %w", table, err)
	}

	base := fmt.Sprintf("%s-%s.csv", table, stamp)
	path := filepath.Join(j.dir, base)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	sidecar := tablehash.Sidecar(tablehash.SumBytes(data), base)
	if err := os.WriteFile(path+".sha256", []byte(sidecar), 0640); err != nil {
		return fmt.Errorf("failed to write checksum sidecar: %w", err)
	}

	slog.Info("snapshot written", "table", table, "file", base, "rows", len(t.Rows))
	return nil
}

// prune removes the oldest snapshots beyond the retention count, sidecars
// included. Stamped names sort chronologically, so a reverse name sort
// yields newest first.
func (j *SnapshotJob) prune(table string) error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return err
	}

	prefix := table + "-"
	wantLen := len(prefix) + len(snapshotStampLayout) + len(".csv")

	var snaps []string
	for _, e := range entries {
		name := e.Name()
		// The exact-length check keeps one table's snapshots from matching
		// another table whose name extends it (Sheet1 vs Sheet1-archive).
		if e.IsDir() || len(name) != wantLen || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		snaps = append(snaps, name)
	}

	if len(snaps) <= j.keep {
		return nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(snaps)))

	var lastErr error
	for _, name := range snaps[j.keep:] {
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil {
			lastErr = err
		}
		if err := os.Remove(filepath.Join(j.dir, name+".sha256")); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}
