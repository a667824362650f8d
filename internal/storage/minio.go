package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"healthvault/internal/domain"
)

// MinioBackend хранит объекты в MinIO-бакете через minio-go.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend создает клиента и при необходимости создает бакет.
func NewMinioBackend(ctx context.Context, conf *MinioConfig) (*MinioBackend, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	endpoint := conf.Endpoint
	useSSL := conf.UseSSL
	// Допускаем endpoint со схемой (http:// или https://).
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: useSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", conf.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{Region: conf.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", conf.Bucket, err)
		}
	}

	return &MinioBackend{client: client, bucket: conf.Bucket}, nil
}

func (b *MinioBackend) Tag() string { return TagMinio }

func (b *MinioBackend) MaxSize() int64 { return 0 }

func (b *MinioBackend) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("failed to upload data to minio: %w", err)
	}

	return b.ResolveURL(key), nil
}

func (b *MinioBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from minio: %w", err)
	}

	// GetObject ленивый: отсутствие объекта видно только на Stat или чтении.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat object in minio: %w", err)
	}

	return obj, nil
}

func (b *MinioBackend) Remove(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object from minio: %w", err)
	}
	return nil
}

func (b *MinioBackend) ResolveURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", b.client.EndpointURL().String(), b.bucket, key)
}
