package sources

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures S3Fetcher.
type S3Config struct {
	Region   string
	Endpoint string // optional, for MinIO or LocalStack
}

// S3Fetcher reads s3://bucket/key objects. The client is created on first
// use so that servers without S3 sources never load AWS configuration.
type S3Fetcher struct {
	cfg     S3Config
	once    sync.Once
	client  *s3.Client
	initErr error
}

// NewS3Fetcher returns a lazily initialised S3 fetcher.
func NewS3Fetcher(cfg S3Config) *S3Fetcher {
	return &S3Fetcher{cfg: cfg}
}

func (f *S3Fetcher) init(ctx context.Context) error {
	f.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(f.cfg.Region))
		if err != nil {
			f.initErr = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		f.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if f.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(f.cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return f.initErr
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := splitBucketURI(uri, "s3")
	if err != nil {
		return nil, err
	}
	if err := f.init(ctx); err != nil {
		return nil, err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", uri, err)
	}
	defer func() { _ = out.Body.Close() }()
	return readCapped(out.Body, MaxBytes)
}
