package coldtier

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// GCSBackend stores cold-tier archives as objects in one Google Cloud
// Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

// NewGCSBackend opens a GCS client using application-default credentials.
func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating GCS client")
	}
	return &GCSBackend{client: client, bucket: bucket}, nil
}

// Upload retries a fresh object-writer stream with an exponential backoff.
func (b *GCSBackend) Upload(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: buffering GCS upload")
	}
	op := func() error {
		w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: GCS upload failed")
	}
	return nil
}

// Download opens a streaming reader over name's object.
func (b *GCSBackend) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: GCS download failed")
	}
	return r, nil
}
