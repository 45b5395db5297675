package export

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectPutter is the subset of *minio.Client used for uploads.
type ObjectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Config locates the artifact bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// Uploader copies export artifacts into object storage.
type Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewUploader wraps an existing client.
func NewUploader(client ObjectPutter, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3Uploader connects to an S3 compatible endpoint. The endpoint may be a
// bare host:port or a URL; an https scheme forces TLS.
func NewS3Uploader(cfg S3Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewUploader(client, cfg.Bucket, cfg.Prefix), nil
}

// Upload puts the file at localPath under the configured prefix and returns
// its s3:// location.
func (u *Uploader) Upload(ctx context.Context, localPath string, f Format) (string, error) {
	key := filepath.Base(localPath)
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}

	_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: f.ContentType(),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to %s/%s: %w", localPath, u.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
