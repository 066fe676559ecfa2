package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/doorguard/internal/config"
)

// MinIOStore keeps evidence images and hands out retrieval URLs for them.
type MinIOStore struct {
	client       *minio.Client
	bucket       string
	publicURL    string
	presignedTTL time.Duration
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client:       client,
		bucket:       cfg.Bucket,
		publicURL:    strings.TrimRight(cfg.PublicURL, "/"),
		presignedTTL: cfg.PresignedTTL,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores the local file under a fresh key and returns its URL.
func (s *MinIOStore) Upload(ctx context.Context, localPath string) (string, error) {
	key := EvidenceKey(time.Now(), filepath.Base(localPath))

	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + key, nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignedTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// EvidenceKey lays evidence out by day: evidence/2006/01/02/<uuid>-<name>.
func EvidenceKey(at time.Time, name string) string {
	return fmt.Sprintf("evidence/%s/%s-%s", at.UTC().Format("2006/01/02"), uuid.NewString(), name)
}
