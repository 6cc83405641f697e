// Package file implements the filesystem record store backend. Each table is a
// single CSV file under the configured directory. This backend is intended for
// development and single-node deployments only — multiple tracker instances
// would need access to the same filesystem. For shared deployments, use the
// postgres or object store backends.
package file

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/csvio"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
)

func init() {
	// Register filesystem store backend
	store.Register("file", func(cfg *config.Config) (store.TableStore, error) {
		return New(&cfg.Store.File)
	})
}

// FileStore implements the TableStore interface on the local filesystem
type FileStore struct {
	dir string
}

// New creates a new filesystem store backend
func New(cfg *config.FileStoreConfig) (*FileStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: cfg.Dir}, nil
}

// tablePath maps a table name to its CSV file. Table names come from
// configuration, not request input, but path traversal is still rejected.
func (s *FileStore) tablePath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid table name: %q", name)
	}
	return filepath.Join(s.dir, name+".csv"), nil
}

// FetchTable reads and parses a table CSV from disk
func (s *FileStore) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	path, err := s.tablePath(name)
	if err != nil {
		return plan.Table{}, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return plan.Table{}, fmt.Errorf("%w: %s", store.ErrTableNotFound, name)
		}
		return plan.Table{}, fmt.Errorf("failed to read table %s: %w", name, err)
	}

	t, err := csvio.Decode(bytes.NewReader(b))
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to parse table %s: %w", name, err)
	}
	return t, nil
}

// ReplaceTable writes the whole table to a temp file and renames it into
// place, so readers always see either the old or the new content.
func (s *FileStore) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	path, err := s.tablePath(name)
	if err != nil {
		return err
	}

	b, err := csvio.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode table %s: %w", name, err)
	}
	return s.writeAtomic(path, b)
}

func (s *FileStore) writeAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".table-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}

// AppendRow appends one CSV row to the table file, creating the file with the
// given header when it does not exist yet.
func (s *FileStore) AppendRow(ctx context.Context, name string, header, row []string) error {
	path, err := s.tablePath(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		if os.IsNotExist(err) {
			t := plan.Table{Columns: header, Rows: []plan.Row{{ID: 0, Cells: row}}}
			b, err := csvio.Encode(t)
			if err != nil {
				return fmt.Errorf("failed to encode table %s: %w", name, err)
			}
			return s.writeAtomic(path, b)
		}
		return fmt.Errorf("failed to open table %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to append to table %s: %w", name, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to append to table %s: %w", name, err)
	}
	return nil
}

// Ping verifies the store directory is accessible
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", store.ErrUnavailable, s.dir)
	}
	return nil
}

// Close is a no-op for the filesystem backend
func (s *FileStore) Close() error {
	return nil
}
