// Package store defines the TableStore interface and common types for all
// record store backends in the work plan tracker.
//
// New backends are added by implementing the TableStore interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    store.Register("mybackend", func(cfg *config.Config) (store.TableStore, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
// This means adding a new backend requires no changes to the factory or main
// package — only a blank import in cmd/server/main.go.
package store

import (
	"context"
	"errors"

	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
)

var (
	// ErrTableNotFound is returned by FetchTable when the named table does
	// not exist in the backend.
	ErrTableNotFound = errors.New("table not found")

	// ErrUnavailable is returned when the backend cannot be reached.
	// Callers treat it as transient and surface it as a gateway error.
	ErrUnavailable = errors.New("store unavailable")
)

// TableStore is the interface every record store backend implements.
// A table is a header row plus zero or more data rows; cells are display
// strings. The tracker keeps two tables in the store: the master work plan
// and the append-only audit log.
type TableStore interface {
	// FetchTable retrieves a table by name. Returns ErrTableNotFound when
	// no table with that name exists.
	FetchTable(ctx context.Context, name string) (plan.Table, error)

	// ReplaceTable overwrites the entire named table, header included,
	// creating it if absent. The replacement is atomic: readers never see
	// a half-written table.
	ReplaceTable(ctx context.Context, name string, t plan.Table) error

	// AppendRow appends a single row to the named table. When the table
	// does not exist yet it is created with the given header first; when
	// it exists the header argument is ignored.
	AppendRow(ctx context.Context, name string, header, row []string) error

	// Ping verifies the backend is reachable. Used by the health endpoint.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
