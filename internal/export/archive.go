package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// DefaultLinkExpiry is how long presigned archive links stay valid.
const DefaultLinkExpiry = 24 * time.Hour

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	Expiry    time.Duration
}

// Archive stores export files in an S3 compatible bucket.
type Archive struct {
	store  objectStore
	bucket string
	expiry time.Duration
	log    zerolog.Logger
}

func NewArchive(cfg ArchiveConfig, logger zerolog.Logger) (*Archive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: endpoint and bucket are required", ErrArchiveUnavailable)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newArchive(client, cfg.Bucket, cfg.Expiry, logger), nil
}

func newArchive(store objectStore, bucket string, expiry time.Duration, logger zerolog.Logger) *Archive {
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}
	return &Archive{
		store:  store,
		bucket: bucket,
		expiry: expiry,
		log:    logger.With().Str("component", "archive").Str("bucket", bucket).Logger(),
	}
}

// EnsureBucket creates the bucket when it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.log.Info().Msg("bucket created")
	return nil
}

// Put uploads res under key and returns a presigned download link.
func (a *Archive) Put(ctx context.Context, key string, res *Result) (ArchiveResult, error) {
	info, err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType:        res.MimeType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", res.Filename),
	})
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("upload %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	link, err := a.store.PresignedGetObject(ctx, a.bucket, key, a.expiry, params)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("presign %s: %w", key, err)
	}

	a.log.Info().Str("key", key).Int64("size", info.Size).Msg("export archived")
	return ArchiveResult{
		Bucket:    a.bucket,
		Key:       key,
		URL:       link.String(),
		ExpiresAt: time.Now().UTC().Add(a.expiry),
		Size:      info.Size,
	}, nil
}
