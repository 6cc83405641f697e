// Package azure implements the Azure Blob Storage table backend. Each table
// is one CSV blob named <prefix>/<table>.csv inside the configured container.
// Authentication uses a shared account key; account name, account key, and
// container name are all required.
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/csvio"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
)

func init() {
	// Register Azure Blob Storage backend
	store.Register("azure", func(cfg *config.Config) (store.TableStore, error) {
		return New(&cfg.Store.Azure)
	})
}

// AzureStore implements store.TableStore on top of Azure Blob Storage.
type AzureStore struct {
	client    *azblob.Client
	container string
	prefix    string
}

// New creates an Azure Blob Storage backend using shared key credentials.
func New(cfg *config.AzureStoreConfig) (*AzureStore, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStore{
		client:    client,
		container: cfg.ContainerName,
		prefix:    cfg.Prefix,
	}, nil
}

func (s *AzureStore) blobName(name string) string {
	blob := name + ".csv"
	if s.prefix != "" {
		blob = strings.TrimSuffix(s.prefix, "/") + "/" + blob
	}
	return blob
}

// FetchTable downloads and parses a table blob
func (s *AzureStore) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(s.blobName(name))

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return plan.Table{}, fmt.Errorf("%w: %s", store.ErrTableNotFound, name)
		}
		return plan.Table{}, fmt.Errorf("failed to fetch table %s from Azure Blob: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to read table %s from Azure Blob: %w", name, err)
	}

	t, err := csvio.Decode(bytes.NewReader(data))
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to parse table %s: %w", name, err)
	}
	return t, nil
}

// ReplaceTable uploads the whole table as one block blob. The blob only
// switches to the new content when the final commit succeeds, so readers see
// either the previous or the new version.
func (s *AzureStore) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	data, err := csvio.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode table %s: %w", name, err)
	}

	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlockBlobClient(s.blobName(name))

	_, err = blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), nil)
	if err != nil {
		return fmt.Errorf("failed to upload table %s to Azure Blob: %w", name, err)
	}
	return nil
}

// AppendRow is a read-modify-write: the blob is downloaded, the row added,
// and the blob re-uploaded. There is no conditional put, so concurrent
// appends to the same table can drop rows.
func (s *AzureStore) AppendRow(ctx context.Context, name string, header, row []string) error {
	t, err := s.FetchTable(ctx, name)
	if err != nil {
		if !errors.Is(err, store.ErrTableNotFound) {
			return err
		}
		t = plan.Table{Columns: header}
	}

	t.Rows = append(t.Rows, plan.Row{ID: len(t.Rows), Cells: row})
	return s.ReplaceTable(ctx, name, t)
}

// Ping verifies the container is reachable
func (s *AzureStore) Ping(ctx context.Context) error {
	containerClient := s.client.ServiceClient().NewContainerClient(s.container)
	_, err := containerClient.GetProperties(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Close is a no-op; the Azure client holds no persistent connections that
// need explicit shutdown.
func (s *AzureStore) Close() error {
	return nil
}
