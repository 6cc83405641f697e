// factory.go implements the store backend registry and factory, mapping backend type
// strings (file, postgres, sqlite, s3, gcs, azure) to constructor functions and
// dispatching New calls.
package store

import (
	"fmt"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
)

// Factory function type for creating store backends
type FactoryFunc func(*config.Config) (TableStore, error)

var factories = make(map[string]FactoryFunc)

// Register registers a store backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// New creates a store backend based on configuration. The returned store is
// wrapped with operation metrics so every backend reports identically named
// Prometheus series.
func New(cfg *config.Config) (TableStore, error) {
	factory, ok := factories[cfg.Store.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported store backend: %s (must be 'file', 'postgres', 'sqlite', 's3', 'gcs', or 'azure')", cfg.Store.Backend)
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return instrument(cfg.Store.Backend, backend), nil
}
