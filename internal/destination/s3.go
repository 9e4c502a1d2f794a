package destination

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"multidest-backup/internal/transfer"
)

// NewS3Adapter creates an adapter that uploads to an S3 (or S3 compatible) bucket
func NewS3Adapter() *ObjectAdapter {
	return NewObjectAdapter(transfer.DestinationS3, openS3)
}

type s3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

func openS3(_ context.Context, cfg transfer.DestinationConfig) (ObjectStore, string, error) {
	if err := cfg.Require("bucket", "region"); err != nil {
		return nil, "", invalidConfig(transfer.DestinationS3, err)
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Get("region"))}
	if ak := cfg.Get("access_key"); ak != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(ak, cfg.Get("secret_key"), "")
	}
	if endpoint := cfg.Get("endpoint"); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create AWS session: %w", err)
	}

	store := &s3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Get("bucket"),
	}
	return store, cfg.Get("prefix"), nil
}

func (s *s3Store) Probe(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

func (s *s3Store) Put(ctx context.Context, key string, content io.Reader, _ int64) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	return err
}

func (s *s3Store) URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

func (s *s3Store) Close() error { return nil }
