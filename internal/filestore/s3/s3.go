// Package s3 stores photos in an S3-compatible bucket (MinIO, AWS S3)
// through minio-go. Objects stay private; the static handler streams them
// to clients.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/filestore"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket is a filestore.FileStore backed by one bucket. Keys are stored
// under prefix, e.g. "students/<key>".
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the endpoint and checks the bucket exists, creating it
// when cfg.CreateBucket is set.
func New(ctx context.Context, cfg config.S3) (*Bucket, error) {
	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("s3.New: endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("s3.New: client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3.New: check bucket: %w", err)
	}
	if !exists {
		if !cfg.CreateBucket {
			return nil, fmt.Errorf("s3.New: bucket %q does not exist", cfg.Bucket)
		}
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("s3.New: create bucket: %w", err)
		}
	}

	return &Bucket{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *Bucket) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := filestore.CheckKey(key); err != nil {
		return err
	}
	_, err := b.client.PutObject(ctx, b.bucket, b.objectName(key), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Open returns a lazily-read object. minio.Object already implements
// Read, Seek and Close, so it is handed to http.ServeContent as is.
func (b *Bucket) Open(ctx context.Context, key string) (*filestore.Object, error) {
	if err := filestore.CheckKey(key); err != nil {
		return nil, err
	}

	obj, err := b.client.GetObject(ctx, b.bucket, b.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", filestore.ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	return &filestore.Object{
		ReadSeekCloser: obj,
		Name:           key,
		Size:           info.Size,
		ContentType:    info.ContentType,
		ModTime:        info.LastModified,
	}, nil
}

// Remove deletes the object. S3 reports success for missing keys, and a
// NoSuchKey answer from other implementations is treated the same way.
func (b *Bucket) Remove(ctx context.Context, key string) error {
	if err := filestore.CheckKey(key); err != nil {
		return err
	}
	err := b.client.RemoveObject(ctx, b.bucket, b.objectName(key), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Ping(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", b.bucket)
	}
	return nil
}

func (b *Bucket) objectName(key string) string {
	return b.prefix + key
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// normaliseEndpoint accepts either "minio:9000" or "http://minio:9000" /
// "https://minio:9000" and returns the host:port minio-go expects.
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme: host:port, insecure by default for a local MinIO.
	return raw, false, nil
}
