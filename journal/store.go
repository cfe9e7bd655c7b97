// Package journal persists playback results and final session metrics to a
// Hive-partitioned lode dataset on the local filesystem or S3.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/mediasync/metrics"
	"github.com/pithecene-io/mediasync/types"
)

// Store writes journal records.
type Store interface {
	// WritePlayback writes settled packets, preserving batch order.
	WritePlayback(ctx context.Context, results []types.PlaybackResult) error
	// WriteMetrics writes the final metrics of a session.
	WriteMetrics(ctx context.Context, sessionID string, snap metrics.Snapshot, completedAt time.Time) error
	Close() error
}

// LodeStore is a lode-backed Store.
type LodeStore struct {
	dataset lode.Dataset
	config  Config
}

// newDataset opens the journal dataset with its layout and codec.
// Read and write paths must agree on both.
func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewFSStore creates a store rooted at a local directory.
func NewFSStore(cfg Config, root string) (*LodeStore, error) {
	return NewStoreWithFactory(cfg, lode.NewFSFactory(root))
}

// NewStoreWithFactory creates a store over a custom lode factory.
// Use lode.NewMemoryFactory() in tests.
func NewStoreWithFactory(cfg Config, factory lode.StoreFactory) (*LodeStore, error) {
	cfg = cfg.withDefaults()
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, wrapStorageError(err, "init", cfg.Dataset)
	}
	return &LodeStore{dataset: ds, config: cfg}, nil
}

// WritePlayback implements Store.
func (s *LodeStore) WritePlayback(ctx context.Context, results []types.PlaybackResult) error {
	if len(results) == 0 {
		return nil
	}
	records := make([]any, 0, len(results))
	for _, r := range results {
		m := toPlaybackRecordMap(r, s.config)
		records = append(records, m)
	}
	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrapStorageError(err, "write", s.config.Dataset)
	}
	return nil
}

// WriteMetrics implements Store.
func (s *LodeStore) WriteMetrics(ctx context.Context, sessionID string, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(sessionID, snap, completedAt, s.config)
	if _, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return wrapStorageError(err, "write", s.config.Dataset)
	}
	return nil
}

// Close implements Store. The lode dataset holds no resources.
func (s *LodeStore) Close() error {
	return nil
}

// S3Config holds configuration for the S3 backend.
type S3Config struct {
	// Bucket is required.
	Bucket string
	// Prefix is the key prefix within the bucket.
	Prefix string
	// Region is optional; the default chain applies when empty.
	Region string
	// Endpoint overrides the endpoint for S3-compatible providers (MinIO, R2).
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" into its parts.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// newS3Factory builds a lode store factory over the AWS default credential chain.
func newS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrapStorageError(fmt.Errorf("failed to load AWS config: %w", err), "init", s3cfg.Bucket)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}

// NewS3Store creates a store backed by S3.
func NewS3Store(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeStore, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewStoreWithFactory(cfg, factory)
}

// Verify LodeStore implements Store.
var _ Store = (*LodeStore)(nil)
