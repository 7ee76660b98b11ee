package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tubelens/tubelens/pkg/logger"
)

var log = logger.Get("Storage")

type Config struct {
	Endpoint  string `yaml:"endpoint" env:"STORAGE_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"STORAGE_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"STORAGE_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"tubelens"`
	UseSSL    bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
}

// BlobStore uploads scrape artifacts (transcripts, thumbnails, audio) to an
// S3-compatible object store and hands back publicly readable URLs. A nil
// *BlobStore is a valid, unavailable store; Upload on it fails and callers
// are expected to gate on Available().
type BlobStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to the configured object store, ensuring the target bucket
// exists and carries an anonymous read policy. Returns nil (no error) when
// no endpoint is configured so the rest of the pipeline can degrade.
func New(ctx context.Context, config Config) (*BlobStore, error) {
	if config.Endpoint == "" {
		log.Emit(logger.WARNING, "No object storage endpoint configured, artifact uploads disabled\n")
		return nil, nil
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage client construction failed: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket existence check for %s failed: %w", config.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("bucket creation for %s failed: %w", config.Bucket, err)
		}

		log.Emit(logger.INFO, "Created artifact bucket %s\n", config.Bucket)
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, config.Bucket)
	if err := client.SetBucketPolicy(ctx, config.Bucket, policy); err != nil {
		return nil, fmt.Errorf("bucket policy application for %s failed: %w", config.Bucket, err)
	}

	scheme := "http"
	if config.UseSSL {
		scheme = "https"
	}

	return &BlobStore{
		client:    client,
		bucket:    config.Bucket,
		publicURL: fmt.Sprintf("%s://%s/%s", scheme, config.Endpoint, config.Bucket),
	}, nil
}

// Available reports whether this store can accept uploads.
func (store *BlobStore) Available() bool { return store != nil && store.client != nil }

// Upload streams the given content to the bucket under 'key' and returns the
// public URL for the stored object. Size may be -1 when unknown.
func (store *BlobStore) Upload(ctx context.Context, key string, contentType string, content io.Reader, size int64) (string, error) {
	if !store.Available() {
		return "", fmt.Errorf("object storage is not configured")
	}

	if _, err := store.client.PutObject(ctx, store.bucket, key, content, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload of %s failed: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", store.publicURL, key), nil
}
