// Package minio stores publish content in an S3-compatible bucket.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

const pingTimeout = 5 * time.Second

// objectAPI is the slice of the minio client the store relies on.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Store struct {
	api    objectAPI
	bucket string
	region string
	logg   *logger.Logger
}

var _ storage.Uploader = (*Store)(nil)

// New connects to the endpoint and ensures the bucket exists.
func New(ctx context.Context, cfg config.MinioConfig, logg *logger.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	store := &Store{api: client, bucket: cfg.Bucket, region: cfg.Region, logg: logg}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"endpoint": cfg.Endpoint, "bucket": cfg.Bucket}), "minio store initialized")
	}
	return store, nil
}

func newWithAPI(api objectAPI, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

func (s *Store) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("creating bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q missing", s.bucket)
	}
	return nil
}

// Upload stores file under its content address, skipping the transfer when
// the object is already present.
func (s *Store) Upload(ctx context.Context, file *storage.File, onProgress storage.ProgressFunc) (storage.Result, error) {
	report := func(pct int) {
		if onProgress != nil {
			onProgress(pct)
		}
	}

	addr, err := storage.ContentAddress(file)
	if err != nil {
		return storage.Result{}, err
	}
	key := storage.ObjectKey(addr)
	result := storage.Result{ContentAddress: addr, Key: key, Size: file.Size, ContentType: file.ContentType}

	report(0)
	if _, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil {
		report(100)
		return result, nil
	}

	body, err := file.Open()
	if err != nil {
		return storage.Result{}, storage.Transient("open", err)
	}
	defer body.Close()

	_, err = s.api.PutObject(ctx, s.bucket, key, body, file.Size, minio.PutObjectOptions{
		ContentType: file.ContentType,
		Progress:    storage.NewProgressReader(nopReader{}, file.Size, report),
	})
	if err != nil {
		return storage.Result{}, classify(err)
	}
	report(100)
	return result, nil
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge, resp.Code == "EntityTooLarge", resp.Code == "InvalidArgument":
		return storage.Validation("upload", err)
	default:
		return storage.Transient("upload", err)
	}
}

// nopReader lets the progress reader count bytes minio reports through Read.
type nopReader struct{}

func (nopReader) Read(b []byte) (int, error) { return len(b), nil }
