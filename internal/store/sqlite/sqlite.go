// Package sqlite implements the SQLite table backend using the pure Go
// modernc.org/sqlite driver, so no cgo toolchain is needed. Tables live in
// two relations: plan_tables holds the column header per table (as a JSON
// array) and plan_rows holds one record per row with its cells as a JSON
// array. This keeps arbitrary column sets without schema migrations when the
// work plan layout changes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

func init() {
	// Register SQLite store backend
	store.Register("sqlite", func(cfg *config.Config) (store.TableStore, error) {
		return New(&cfg.Store.SQLite)
	})
}

// SQLiteStore implements store.TableStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at cfg.Path and
// ensures the schema exists. The special path ":memory:" opens an in-memory
// database, which is handy for tests.
func New(cfg *config.SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer at a time; a second concurrent connection
	// produces SQLITE_BUSY errors, so the pool is capped at one.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	telemetry.StartDBStatsCollector(db)

	return s, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS plan_tables (
			name    TEXT PRIMARY KEY,
			columns TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS plan_rows (
			table_name TEXT NOT NULL,
			row_index  INTEGER NOT NULL,
			cells      TEXT NOT NULL,
			PRIMARY KEY (table_name, row_index)
		);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// FetchTable loads the named table, rows ordered by their stored index.
func (s *SQLiteStore) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	var columnsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT columns FROM plan_tables WHERE name = ?`, name).Scan(&columnsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Table{}, fmt.Errorf("%w: %s", store.ErrTableNotFound, name)
	}
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to fetch table %s: %w", name, err)
	}

	var t plan.Table
	if err := json.Unmarshal([]byte(columnsJSON), &t.Columns); err != nil {
		return plan.Table{}, fmt.Errorf("failed to decode columns for table %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cells FROM plan_rows WHERE table_name = ? ORDER BY row_index`, name)
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to fetch rows for table %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cellsJSON string
		if err := rows.Scan(&cellsJSON); err != nil {
			return plan.Table{}, fmt.Errorf("failed to scan row for table %s: %w", name, err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(cellsJSON), &cells); err != nil {
			return plan.Table{}, fmt.Errorf("failed to decode row for table %s: %w", name, err)
		}
		t.Rows = append(t.Rows, plan.Row{ID: len(t.Rows), Cells: cells})
	}
	if err := rows.Err(); err != nil {
		return plan.Table{}, fmt.Errorf("failed to iterate rows for table %s: %w", name, err)
	}

	return t, nil
}

// ReplaceTable swaps the table's contents inside a single transaction, so
// readers see either the previous version or the new one.
func (s *SQLiteStore) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	columnsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns for table %s: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO plan_tables (name, columns) VALUES (?, ?)`,
		name, string(columnsJSON)); err != nil {
		return fmt.Errorf("failed to upsert table %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM plan_rows WHERE table_name = ?`, name); err != nil {
		return fmt.Errorf("failed to clear rows for table %s: %w", name, err)
	}

	for i, r := range t.Rows {
		cellsJSON, err := json.Marshal(r.Cells)
		if err != nil {
			return fmt.Errorf("failed to encode row %d for table %s: %w", i, name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plan_rows (table_name, row_index, cells) VALUES (?, ?, ?)`,
			name, i, string(cellsJSON)); err != nil {
			return fmt.Errorf("failed to insert row %d for table %s: %w", i, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", name, err)
	}
	return nil
}

// AppendRow adds one row at the next index, creating the table with the
// given header when it does not exist yet. The check and the insert share a
// transaction, so concurrent appends cannot claim the same index.
func (s *SQLiteStore) AppendRow(ctx context.Context, name string, header, row []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var columnsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT columns FROM plan_tables WHERE name = ?`, name).Scan(&columnsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		headerJSON, merr := json.Marshal(header)
		if merr != nil {
			return fmt.Errorf("failed to encode header for table %s: %w", name, merr)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plan_tables (name, columns) VALUES (?, ?)`,
			name, string(headerJSON)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to check table %s: %w", name, err)
	}

	cellsJSON, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row for table %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plan_rows (table_name, row_index, cells)
		 VALUES (?, (SELECT COALESCE(MAX(row_index)+1, 0) FROM plan_rows WHERE table_name = ?), ?)`,
		name, name, string(cellsJSON)); err != nil {
		return fmt.Errorf("failed to append row to table %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append to table %s: %w", name, err)
	}
	return nil
}

// Ping verifies the database file is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
