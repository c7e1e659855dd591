package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"pixguard/internal/config"
)

// S3Backend stores objects in an S3 (or S3-compatible) bucket.
type S3Backend struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	presignTTL time.Duration
}

// NewS3Backend builds the backend using the standard AWS config/credential
// chain, with optional region, profile, and endpoint overrides for
// S3-compatible providers.
func NewS3Backend(ctx context.Context, cfg *config.Config) (*S3Backend, error) {
	if cfg.Storage.S3Bucket == "" {
		return nil, fmt.Errorf("storage backend s3 requires s3_bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Storage.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Storage.S3Region))
	}
	if cfg.Storage.S3Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Storage.S3Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3UsePathStyle
	})

	ttl := time.Duration(cfg.Storage.PresignTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Backend{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Storage.S3Bucket,
		presignTTL: ttl,
	}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", b.bucket, key, err)
	}
	return out.Body, nil
}

// Exists reports whether the object is already stored, treating HTTP 404 and
// the NotFound API code as a clean false.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("head s3://%s/%s: %w", b.bucket, key, err)
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *S3Backend) PublicURL(ctx context.Context, key string) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = b.presignTTL
	})
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", b.bucket, key, err)
	}
	return req.URL, nil
}
