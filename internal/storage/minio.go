// Package storage implements the object store gateway against any
// S3-compatible backend.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// defaultRegion is used when AWS_DEFAULT_REGION is unset.
const defaultRegion = "us-east-1"

// Options carries the connection settings for an S3-compatible store.
type Options struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint overrides the default AWS endpoint. Leave empty for AWS;
	// an http:// prefix disables TLS for local or third-party backends.
	Endpoint string
}

// MinioStore is the S3-compatible gateway used for artifact upload, listing
// and pruning.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// endpointFor resolves the endpoint and TLS mode. The default AWS endpoint
// is only overridden when an explicit non-empty endpoint is configured.
func endpointFor(opts Options) (endpoint string, secure bool) {
	if opts.Endpoint == "" {
		region := opts.Region
		if region == "" {
			region = defaultRegion
		}
		return fmt.Sprintf("s3.%s.amazonaws.com", region), true
	}
	switch {
	case strings.HasPrefix(opts.Endpoint, "https://"):
		return strings.TrimPrefix(opts.Endpoint, "https://"), true
	case strings.HasPrefix(opts.Endpoint, "http://"):
		return strings.TrimPrefix(opts.Endpoint, "http://"), false
	default:
		return opts.Endpoint, true
	}
}

// NewMinioStore connects to the store and verifies the bucket exists, so a
// misconfigured destination fails before any database is touched.
func NewMinioStore(ctx context.Context, opts Options) (*MinioStore, error) {
	endpoint, secure := endpointFor(opts)

	region := opts.Region
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", opts.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", opts.Bucket)
	}

	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

// Put uploads size bytes from r under key.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("upload %q: %w", key, err)
	}
	return nil
}

// List returns the object names under prefix in lexicographic order. Each
// call performs a fresh listing; nothing is cached across calls.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, obj.Err)
		}
		names = append(names, obj.Key)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes one object.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
