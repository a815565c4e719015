// Package objstore stores uploaded documents in an S3-compatible bucket.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/observability"
)

const defaultGetTimeout = 30 * time.Second

// Client wraps a MinIO connection scoped to one bucket.
type Client struct {
	mc         *minio.Client
	bucket     string
	folder     string
	getTimeout time.Duration
	logger     *observability.Logger
}

// New creates a client from configuration. The endpoint accepts both
// "host:port" and URL forms; a scheme prefix is stripped.
func New(cfg config.ObjectStoreConfig) (*Client, error) {
	endpoint := NormalizeEndpoint(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	timeout := cfg.GetTimeout
	if timeout <= 0 {
		timeout = defaultGetTimeout
	}

	return &Client{
		mc:         mc,
		bucket:     cfg.Bucket,
		folder:     strings.Trim(cfg.Folder, "/"),
		getTimeout: timeout,
		logger:     observability.NewLogger(observability.LogConfig{}),
	}, nil
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *observability.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", c.bucket, err)
	}
	c.logger.Info(ctx, "created bucket", "bucket", c.bucket)
	return nil
}

// ObjectKey builds the storage key for an uploaded file:
// "<folder>/<uuid>.<ext>" with the extension taken from the original
// filename, defaulting to pdf.
func (c *Client) ObjectKey(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "pdf"
	}
	key := uuid.New().String() + "." + ext
	if c.folder != "" {
		return c.folder + "/" + key
	}
	return key
}

// Put stores data under key with the given content type.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	c.logger.Debug(ctx, "stored object", "object", key, "bytes", len(data))
	return nil
}

// Get downloads an object in full. The configured timeout bounds the whole
// download, including the body read.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	c.logger.Debug(ctx, "fetched object", "object", key, "bytes", len(data))
	return data, nil
}

// Remove deletes an object. Removing a missing object is not an error.
func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// Ping reports whether the bucket is reachable; readiness checks use it.
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", c.bucket)
	}
	return nil
}

// NormalizeEndpoint strips a scheme prefix and surrounding noise from a
// configured endpoint so both URL and host:port forms work.
func NormalizeEndpoint(endpoint string) string {
	e := strings.TrimSpace(endpoint)
	e = strings.TrimPrefix(e, "https://")
	e = strings.TrimPrefix(e, "http://")
	return strings.TrimSuffix(e, "/")
}
