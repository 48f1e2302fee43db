package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/edvin/zargar/internal/config"
)

// Azure stores blobs in an Azure Blob Storage container.
type Azure struct {
	container azblob.ContainerURL
	prefix    string
}

func NewAzure(cfg config.AzureStorageConfig) (*Azure, error) {
	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create azure credentials: %w", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	serviceURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse azure service url: %w", err)
	}
	return &Azure{
		container: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(cfg.Container),
		prefix:    cfg.Prefix,
	}, nil
}

func (a *Azure) Name() string { return "azure" }

func (a *Azure) blob(key string) (azblob.BlockBlobURL, string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return azblob.BlockBlobURL{}, "", err
	}
	name := withPrefix(a.prefix, k)
	return a.container.NewBlockBlobURL(name), name, nil
}

func (a *Azure) Put(ctx context.Context, key string, data []byte) error {
	blob, name, err := a.blob(key)
	if err != nil {
		return err
	}
	_, err = azblob.UploadBufferToBlockBlob(ctx, data, blob, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 8,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", name, err)
	}
	return nil
}

func (a *Azure) Get(ctx context.Context, key string) ([]byte, error) {
	blob, name, err := a.blob(key)
	if err != nil {
		return nil, err
	}
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("azure %s: %w", name, ErrBlobNotFound)
		}
		return nil, fmt.Errorf("azure download %s: %w", name, err)
	}
	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 5})
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("azure read %s: %w", name, err)
	}
	return data, nil
}

func (a *Azure) Delete(ctx context.Context, key string) error {
	blob, name, err := a.blob(key)
	if err != nil {
		return err
	}
	_, err = blob.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("azure delete %s: %w", name, err)
	}
	return nil
}

func (a *Azure) Exists(ctx context.Context, key string) (bool, error) {
	blob, name, err := a.blob(key)
	if err != nil {
		return false, err
	}
	_, err = blob.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if isAzureNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("azure properties %s: %w", name, err)
	}
	return true, nil
}

func isAzureNotFound(err error) bool {
	var stgErr azblob.StorageError
	if !errors.As(err, &stgErr) {
		return false
	}
	if stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
		return true
	}
	resp := stgErr.Response()
	return resp != nil && resp.StatusCode == http.StatusNotFound
}
