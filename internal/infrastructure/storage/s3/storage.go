package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/storage"
)

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PathStyle is required by LocalStack and MinIO.
	PathStyle          bool
	ResilienceExecutor *resilience.Executor
}

type Storage struct {
	client   *s3.Client
	bucket   string
	executor *resilience.Executor
}

func New(ctx context.Context, opts Options) (*Storage, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &Storage{client: client, bucket: opts.Bucket, executor: opts.ResilienceExecutor}, nil
}

func (s *Storage) Store(ctx context.Context, ownerID, jobID, filename string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	key := storage.ObjectKey(ownerID, jobID, filename)

	err = s.execute(ctx, "s3.put_object", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(raw),
			ContentLength: aws.Int64(int64(len(raw))),
		})
		if err != nil {
			return fmt.Errorf("put object: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", wrapTemporaryIfNeeded(err)
	}
	return key, nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := s.execute(ctx, "s3.get_object", func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("get object: %w", err)
		}
		body = out.Body
		return nil
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, domain.WrapError(domain.ErrNotFound, "open object", err)
		}
		return nil, wrapTemporaryIfNeeded(err)
	}
	return body, nil
}

func (s *Storage) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.executor == nil {
		return fn(ctx)
	}
	return s.executor.Execute(ctx, operation, fn, classifyS3Error)
}

func classifyS3Error(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, resilience.ErrAttemptTimeout) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, resilience.ErrAttemptTimeout) || resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return resilience.ErrorClassification{
			Retryable:     code == http.StatusTooManyRequests || code >= 500,
			RecordFailure: code == http.StatusTooManyRequests || code >= 500,
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	// Transport level failure.
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyS3Error(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "s3", err)
	}
	return err
}
