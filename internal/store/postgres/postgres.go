// Package postgres implements the PostgreSQL table backend. It wraps sqlx
// for connection pooling and golang-migrate for schema versioning; migrations
// are embedded in the binary so the server can apply schema changes on
// startup without external tooling. Tables live in two relations: plan_tables
// holds the column header per table and plan_rows holds one record per row,
// both using native text arrays.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	// Register PostgreSQL store backend
	store.Register("postgres", func(cfg *config.Config) (store.TableStore, error) {
		return New(&cfg.Store.Postgres)
	})
}

// PostgresStore implements store.TableStore on a PostgreSQL database.
type PostgresStore struct {
	db *sqlx.DB
}

// New connects to PostgreSQL, applies pending migrations, and starts the
// connection pool stats collector.
func New(cfg *config.PostgresStoreConfig) (*PostgresStore, error) {
	database, err := Connect(cfg.GetDSN(), cfg.MaxConnections, cfg.MinIdleConnections)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(database, "up"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	telemetry.StartDBStatsCollector(database)

	return &PostgresStore{db: sqlx.NewDb(database, "postgres")}, nil
}

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, maxConnections, minIdleConnections int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(minIdleConnections)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// RunMigrations runs database migrations
func RunMigrations(db *sql.DB, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("invalid migration direction: %s (must be 'up' or 'down')", direction)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if direction == "up" {
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	}
	if err := m.Down(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// GetMigrationVersion returns the current migration version
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migration instance: %w", err)
	}

	version, dirty, err = m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}

// FetchTable loads the named table, rows ordered by their stored index.
func (s *PostgresStore) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	var cols pq.StringArray
	err := s.db.GetContext(ctx, &cols,
		`SELECT columns FROM plan_tables WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Table{}, fmt.Errorf("%w: %s", store.ErrTableNotFound, name)
	}
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to fetch table %s: %w", name, err)
	}

	t := plan.Table{Columns: []string(cols)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cells FROM plan_rows WHERE table_name = $1 ORDER BY row_index`, name)
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to fetch rows for table %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cells pq.StringArray
		if err := rows.Scan(&cells); err != nil {
			return plan.Table{}, fmt.Errorf("failed to scan row for table %s: %w", name, err)
		}
		t.Rows = append(t.Rows, plan.Row{ID: len(t.Rows), Cells: []string(cells)})
	}
	if err := rows.Err(); err != nil {
		return plan.Table{}, fmt.Errorf("failed to iterate rows for table %s: %w", name, err)
	}

	return t, nil
}

// ReplaceTable swaps the table's contents inside a single transaction, so
// readers see either the previous version or the new one.
func (s *PostgresStore) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plan_tables (name, columns) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET columns = EXCLUDED.columns`,
		name, pq.Array(t.Columns)); err != nil {
		return fmt.Errorf("failed to upsert table %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM plan_rows WHERE table_name = $1`, name); err != nil {
		return fmt.Errorf("failed to clear rows for table %s: %w", name, err)
	}

	for i, r := range t.Rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plan_rows (table_name, row_index, cells) VALUES ($1, $2, $3)`,
			name, i, pq.Array(r.Cells)); err != nil {
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
func (s *PostgresStore) AppendRow(ctx context.Context, name string, header, row []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plan_tables (name, columns) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		name, pq.Array(header)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	// Casts are explicit because the planner cannot infer parameter types
	// inside an INSERT ... SELECT list.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plan_rows (table_name, row_index, cells)
		 SELECT $1::text, COALESCE(MAX(row_index)+1, 0), $2::text[] FROM plan_rows WHERE table_name = $1`,
		name, pq.Array(row)); err != nil {
		return fmt.Errorf("failed to append row to table %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append to table %s: %w", name, err)
	}
	return nil
}

// Ping verifies the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
