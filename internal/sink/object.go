package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"searchads-tap/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// uploadFunc stores the finished JSON lines document.
type uploadFunc func(ctx context.Context, body []byte) error

// objectSink buffers JSON lines in memory and uploads them once on Close.
type objectSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	enc    *json.Encoder
	upload uploadFunc
	closed bool
}

var _ domain.RowSink = (*objectSink)(nil)

func newObjectSink(upload uploadFunc) *objectSink {
	s := &objectSink{upload: upload}
	s.enc = json.NewEncoder(&s.buf)
	return s
}

func (s *objectSink) Write(_ context.Context, records []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("write to closed sink")
	}
	for i, rec := range records {
		if err := s.enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

func (s *objectSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.upload(ctx, s.buf.Bytes())
}

// NewS3Sink uploads to s3://bucket/key using static credentials, against AWS
// or an S3-compatible endpoint (path-style addressing).
func NewS3Sink(_ context.Context, bucket, key string, opts S3Options) (domain.RowSink, error) {
	if opts.KeyID == "" || opts.Secret == "" {
		return nil, domain.ErrValidation("s3 sink requires KEY_ID and SECRET")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	s3Opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, ""),
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3Opts.BaseEndpoint = aws.String(endpoint)
		s3Opts.UsePathStyle = true
	}
	client := s3.New(s3Opts)

	return newObjectSink(func(ctx context.Context, body []byte) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(jsonlContentType),
		})
		if err != nil {
			return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
		}
		return nil
	}), nil
}

// NewGCSSink uploads to gs://bucket/key. An empty keyFile uses application
// default credentials.
func NewGCSSink(ctx context.Context, bucket, key, keyFile string) (domain.RowSink, error) {
	var clientOpts []option.ClientOption
	if keyFile != "" {
		clientOpts = append(clientOpts, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return newObjectSink(func(ctx context.Context, body []byte) error {
		defer client.Close() //nolint:errcheck
		w := client.Bucket(bucket).Object(key).NewWriter(ctx)
		w.ContentType = jsonlContentType
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return fmt.Errorf("write gs://%s/%s: %w", bucket, key, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close gs://%s/%s: %w", bucket, key, err)
		}
		return nil
	}), nil
}

// NewAzureSink uploads to az://container/key with a storage connection string.
func NewAzureSink(container, key, connectionString string) (domain.RowSink, error) {
	if connectionString == "" {
		return nil, domain.ErrValidation("azure sink requires AZURE_STORAGE_CONNECTION_STRING")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return newObjectSink(func(ctx context.Context, body []byte) error {
		if _, err := client.UploadBuffer(ctx, container, key, body, nil); err != nil {
			return fmt.Errorf("upload az://%s/%s: %w", container, key, err)
		}
		return nil
	}), nil
}
