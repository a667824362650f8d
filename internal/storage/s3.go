package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"healthvault/internal/domain"
)

const (
	s3DefaultTimeout = 30 * time.Second
	s3UploadTimeout  = 10 * time.Minute
)

// S3Backend хранит объекты в S3-совместимом бакете.
type S3Backend struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

// NewS3Backend создает клиента и проверяет доступность бакета.
func NewS3Backend(conf *S3Config) (*S3Backend, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	// Одна попытка на бэкенд: при сбое цепочка сразу переходит к следующему,
	// повторы внутри клиента только затягивают fallback.
	client := s3.New(s3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		RetryMaxAttempts: 1,
	})

	backend := &S3Backend{
		client:   client,
		bucket:   conf.Bucket,
		endpoint: strings.TrimSuffix(conf.Endpoint, "/"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3DefaultTimeout)
	defer cancel()

	_, err := backend.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return backend, nil
}

func (b *S3Backend) Tag() string { return TagS3 }

func (b *S3Backend) MaxSize() int64 { return 0 }

func (b *S3Backend) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s3UploadTimeout)
	defer cancel()

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload data to S3: %w", err)
	}

	return b.ResolveURL(key), nil
}

func (b *S3Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

func (b *S3Backend) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s3DefaultTimeout)
	defer cancel()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (b *S3Backend) ResolveURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucket, key)
}
