package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
)

// S3API is the subset of the S3 client the exporter uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Emitter buffers events and uploads them in batches to an S3 bucket.
// Each flush writes one object named <prefix>/<ulid>.json containing the
// buffered events as a JSON array.
type S3Emitter struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	buffer []*Event
	limit  int
}

// NewS3Emitter creates an emitter uploading to the given bucket and prefix.
// batchSize controls how many events accumulate before an automatic flush;
// values <= 0 use 64.
func NewS3Emitter(client S3API, bucket, prefix string, batchSize int, logger *slog.Logger) *S3Emitter {
	if batchSize <= 0 {
		batchSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Emitter{
		client: client,
		bucket: bucket,
		prefix: prefix,
		limit:  batchSize,
		logger: logger,
	}
}

// NewS3Client builds an S3 client from the default AWS config chain
// (environment, shared config, instance role).
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Emit buffers the event and flushes when the batch limit is reached.
func (e *S3Emitter) Emit(event *Event) {
	e.mu.Lock()
	e.buffer = append(e.buffer, event)
	shouldFlush := len(e.buffer) >= e.limit
	e.mu.Unlock()

	if shouldFlush {
		e.Flush(context.Background())
	}
}

// Flush uploads the buffered events. Upload failures are logged and the
// batch is dropped rather than retried: auditing must not wedge the service.
func (e *S3Emitter) Flush(ctx context.Context) {
	e.mu.Lock()
	batch := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	data, err := json.Marshal(batch)
	if err != nil {
		e.logger.Warn("audit: marshal s3 batch", "error", err)
		return
	}

	key := fmt.Sprintf("%s/%s.json", e.prefix, ulid.Make().String())

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &e.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		e.logger.Warn("audit: upload s3 batch", "bucket", e.bucket, "key", key, "error", err)
		return
	}
	e.logger.Debug("audit: uploaded batch", "key", key, "events", len(batch))
}
