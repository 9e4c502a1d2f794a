package destination

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"multidest-backup/internal/transfer"
)

// NewGCSAdapter creates an adapter that uploads to a Google Cloud Storage bucket
func NewGCSAdapter() *ObjectAdapter {
	return NewObjectAdapter(transfer.DestinationGCS, openGCS)
}

type gcsStore struct {
	client *storage.Client
	bucket string
}

func openGCS(ctx context.Context, cfg transfer.DestinationConfig) (ObjectStore, string, error) {
	if err := cfg.Require("bucket"); err != nil {
		return nil, "", invalidConfig(transfer.DestinationGCS, err)
	}

	var client *storage.Client
	var err error
	if credentialsPath := cfg.Get("credentials_path"); credentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(expandHome(credentialsPath)))
	} else {
		// Application default credentials
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &gcsStore{client: client, bucket: cfg.Get("bucket")}, cfg.Get("prefix"), nil
}

func (s *gcsStore) Probe(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	return err
}

func (s *gcsStore) Put(ctx context.Context, key string, content io.Reader, _ int64) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *gcsStore) URL(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}
