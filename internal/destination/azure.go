package destination

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"multidest-backup/internal/transfer"
)

// NewAzureAdapter creates an adapter that uploads to an Azure Blob container
func NewAzureAdapter() *ObjectAdapter {
	return NewObjectAdapter(transfer.DestinationAzure, openAzure)
}

type azureStore struct {
	container     azblob.ContainerURL
	containerName string
}

func openAzure(_ context.Context, cfg transfer.DestinationConfig) (ObjectStore, string, error) {
	if err := cfg.Require("account_name", "account_key", "container"); err != nil {
		return nil, "", invalidConfig(transfer.DestinationAzure, err)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.Get("account_name"), cfg.Get("account_key"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Get("account_name")))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse Azure service URL: %w", err)
	}

	container := cfg.Get("container")
	store := &azureStore{
		container:     azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(container),
		containerName: container,
	}
	return store, cfg.Get("prefix"), nil
}

func (s *azureStore) Probe(ctx context.Context) error {
	_, err := s.container.GetProperties(ctx, azblob.LeaseAccessConditions{})
	return err
}

func (s *azureStore) Put(ctx context.Context, key string, content io.Reader, _ int64) error {
	blob := s.container.NewBlockBlobURL(key)
	_, err := azblob.UploadStreamToBlockBlob(ctx, content, blob, azblob.UploadStreamToBlockBlobOptions{
		BufferSize: 4 * 1024 * 1024, // 4MB blocks
		MaxBuffers: 4,
	})
	return err
}

func (s *azureStore) URL(key string) string {
	return fmt.Sprintf("azure://%s/%s", s.containerName, key)
}

func (s *azureStore) Close() error { return nil }
