package coldtier

import (
	"bytes"
	"context"
	"io"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// S3Backend stores cold-tier archives in an S3-compatible bucket (AWS S3 or
// any MinIO-compatible "named cloud provider", spec.md §4.11).
type S3Backend struct {
	client *minio.Client
	bucket string
}

// NewS3Backend dials endpoint with static credentials and targets bucket.
func NewS3Backend(endpoint, accessKey, secretKey, bucket string, useTLS bool) (*S3Backend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating S3 client")
	}
	return &S3Backend{client: client, bucket: bucket}, nil
}

// Upload retries PutObject with an exponential backoff, matching the retry
// shape restic's S3 backend applies around its own minio-go calls.
func (b *S3Backend) Upload(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: buffering S3 upload")
	}
	op := func() error {
		_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: S3 upload failed")
	}
	return nil
}

// Download opens a streaming reader over name's object.
func (b *S3Backend) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: S3 download failed")
	}
	return obj, nil
}
