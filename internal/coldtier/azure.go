package coldtier

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/cenkalti/backoff/v4"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// AzureBackend stores cold-tier archives as blobs in one Azure Blob Storage
// container.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

// NewAzureBackend authenticates against accountURL using the ambient
// Azure credential chain (environment, managed identity, or CLI login).
func NewAzureBackend(accountURL, container string) (*AzureBackend, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating Azure credential")
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: creating Azure client")
	}
	return &AzureBackend{client: client, container: container}, nil
}

// Upload retries UploadBuffer with an exponential backoff.
func (b *AzureBackend) Upload(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: buffering Azure upload")
	}
	op := func() error {
		_, err := b.client.UploadBuffer(ctx, b.container, name, data, nil)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: Azure upload failed")
	}
	return nil
}

// Download opens a streaming reader over name's blob.
func (b *AzureBackend) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, name, nil)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "coldtier: Azure download failed")
	}
	return resp.Body, nil
}
