// Package s3 implements the S3-compatible record store backend. Each table is
// one CSV object in the bucket. It supports AWS S3, MinIO, DigitalOcean Spaces,
// and other S3-compatible services via a configurable endpoint. Multiple
// authentication methods are supported: the default AWS credential chain
// (recommended for EC2/EKS with IAM roles), static key/secret, and AssumeRole
// for cross-account access.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	appconfig "github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/csvio"
	"github.com/yeryani-tests/joint-work-plan-app/internal/plan"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
)

func init() {
	// Register S3 store backend
	store.Register("s3", func(cfg *appconfig.Config) (store.TableStore, error) {
		return New(&cfg.Store.S3)
	})
}

// S3Store implements the TableStore interface for S3-compatible storage
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates a new S3-compatible store backend
//
// Authentication methods:
//   - "default" or empty: Uses AWS default credential chain (env vars, shared config, IAM role, IMDS)
//   - "static": Uses explicit access key and secret key
//   - "assume_role": Assumes an IAM role (optionally with external ID for cross-account)
func New(cfg *appconfig.S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		// S3-compatible services behind a custom endpoint still want a
		// region string on the wire.
		region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		// Backwards compatibility: if access keys are provided, use static auth
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			authMethod = "static"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "static":
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("access_key_id and secret_access_key are required for static auth")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))

	case "assume_role":
		// Configured after loading the base config; requires role_arn

	case "default":
		// AWS default credential chain: env vars, shared credentials file,
		// shared config file, EC2/ECS/Lambda IAM role, EKS pod identity

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'static', or 'assume_role')", authMethod)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if authMethod == "assume_role" {
		if cfg.RoleARN == "" {
			return nil, fmt.Errorf("role_arn is required for assume_role auth")
		}

		stsClient := sts.NewFromConfig(awsCfg)

		var assumeRoleOpts []func(*stscreds.AssumeRoleOptions)
		if cfg.RoleSessionName != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = cfg.RoleSessionName
			})
		}
		if cfg.ExternalID != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.ExternalID = aws.String(cfg.ExternalID)
			})
		}

		provider := stscreds.NewAssumeRoleProvider(stsClient, cfg.RoleARN, assumeRoleOpts...)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// For S3-compatible services, use path-style addressing
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) objectKey(name string) string {
	key := name + ".csv"
	if s.prefix != "" {
		key = strings.TrimSuffix(s.prefix, "/") + "/" + key
	}
	return key
}

// FetchTable downloads and parses a table object
func (s *S3Store) FetchTable(ctx context.Context, name string) (plan.Table, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return plan.Table{}, fmt.Errorf("%w: %s", store.ErrTableNotFound, name)
		}
		return plan.Table{}, fmt.Errorf("failed to fetch table %s from S3: %w", name, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to read table %s from S3: %w", name, err)
	}

	t, err := csvio.Decode(bytes.NewReader(data))
	if err != nil {
		return plan.Table{}, fmt.Errorf("failed to parse table %s: %w", name, err)
	}
	return t, nil
}

// ReplaceTable uploads the whole table as one object. S3 object writes are
// atomic, so readers see either the previous or the new version.
func (s *S3Store) ReplaceTable(ctx context.Context, name string, t plan.Table) error {
	data, err := csvio.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode table %s: %w", name, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload table %s to S3: %w", name, err)
	}
	return nil
}

// AppendRow is a read-modify-write: the object is downloaded, the row added,
// and the object re-uploaded. There is no conditional put, so concurrent
// appends to the same table can drop rows.
func (s *S3Store) AppendRow(ctx context.Context, name string, header, row []string) error {
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

// Ping verifies the bucket is reachable
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no persistent connections that need
// explicit shutdown.
func (s *S3Store) Close() error {
	return nil
}
