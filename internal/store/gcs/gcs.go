// Package gcs implements the Google Cloud Storage record store backend. Each
// table is one CSV object in the bucket. Supports Application Default
// Credentials, service account JSON keys (inline or file), and custom
// endpoints for emulators such as fake-gcs-server.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/csvio"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	appstore "github.com/yeryani-tests/joint-work-plan-app/internal/store"
)

func init() {
	// Register GCS store backend
	appstore.Register("gcs", func(cfg *appconfig.Config) (appstore.TableStore, error) {
		return New(&cfg.Store.GCS)
	})
}

// GCSStore implements the TableStore interface for Google Cloud Storage
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a new Google Cloud Storage store backend
//
// Authentication: inline JSON credentials take precedence, then a credentials
// file path. With neither set, Application Default Credentials are used, which
// automatically supports:
//   - GOOGLE_APPLICATION_CREDENTIALS environment variable
//   - GCE/GKE metadata service (Workload Identity)
//   - Cloud Run/Cloud Functions service account
//   - gcloud auth application-default login
func New(cfg *appconfig.GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	ctx := context.Background()
	var opts []option.ClientOption

	// Custom endpoint for GCS emulators or compatible services
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSStore) objectName(name string) string {
	obj := name + ".csv"
	if s.prefix != "" {
		obj = strings.TrimSuffix(s.prefix, "/") + "/" + obj
	}
	return obj
}

// FetchTable downloads and parses a table object
func (s *GCSStore) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectName(name))

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return plan.Table{}, fmt.Errorf("%w: %s", appstore.ErrTableNotFound, name)
		}
		return plan.Table{}, fmt.Errorf("failed to fetch table %s from GCS: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to read table %s from GCS: %w", name, err)
	}

	t, err := csvio.Decode(bytes.NewReader(data))
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to parse table %s: %w", name, err)
	}
	return t, nil
}

// ReplaceTable uploads the whole table as one object. GCS object writes only
// become visible on a successful writer Close, so readers see either the
// previous or the new version.
func (s *GCSStore) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	data, err := csvio.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode table %s: %w", name, err)
	}

	obj := s.client.Bucket(s.bucket).Object(s.objectName(name))
	writer := obj.NewWriter(ctx)
	writer.ContentType = "text/csv"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write table %s to GCS: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize table %s in GCS: %w", name, err)
	}
	return nil
}

// AppendRow is a read-modify-write: the object is downloaded, the row added,
// and the object re-uploaded. Concurrent appends to the same table can drop
// rows.
func (s *GCSStore) AppendRow(ctx context.Context, name string, header, row []string) error {
	t, err := s.FetchTable(ctx, name)
	if err != nil {
		if !errors.Is(err, appstore.ErrTableNotFound) {
			return err
		}
		t = plan.Table{Columns: header}
	}

	t.Rows = append(t.Rows, plan.Row{ID: len(t.Rows), Cells: row})
	return s.ReplaceTable(ctx, name, t)
}

// Ping verifies the bucket is reachable
func (s *GCSStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("%w: %v", appstore.ErrUnavailable, err)
	}
	return nil
}

// Close closes the GCS client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
