// Package s3 implements objectstore.ObjectStore on Amazon S3 or any
// S3-compatible storage (MinIO, Localstack, Cubbit DS3).
//
// Clients never stream bytes through this process: uploads and downloads
// run against pre-signed URLs, and the only data-plane calls made here are
// server-side copies and deletes during folder operations.
//
// Thread Safety:
// This implementation is safe for concurrent use by multiple goroutines;
// the underlying AWS SDK clients are concurrency-safe.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/cubbyhole/cubby/pkg/objectstore"
)

// maxDeleteBatchSize is the S3 DeleteObjects per-call limit.
const maxDeleteBatchSize = 1000

// ObjectStore implements objectstore.ObjectStore against an S3 bucket.
type ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// Config contains configuration for the S3 object store.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name. The bucket must already exist; the
	// constructor verifies access but does not create it.
	Bucket string
}

// New creates an S3-backed object store and verifies bucket access.
func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("S3 object store initialized")

	return &ObjectStore{
		client:  cfg.Client,
		presign: s3.NewPresignClient(cfg.Client),
		bucket:  cfg.Bucket,
	}, nil
}

// CreateUploadURL issues a pre-signed PUT for key. The content type is
// baked into the signature so the client must send it back unchanged.
func (s *ObjectStore) CreateUploadURL(ctx context.Context, key string, contentType string, ttl time.Duration) (*objectstore.UploadTarget, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload for %q: %w", key, err)
	}

	return &objectstore.UploadTarget{URL: req.URL}, nil
}

// CreateDownloadURL issues a pre-signed GET for key. When downloadName is
// set the response advertises it as an attachment filename.
func (s *ObjectStore) CreateDownloadURL(ctx context.Context, key string, downloadName string, ttl time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if downloadName != "" {
		disposition := fmt.Sprintf("attachment; filename=%q", downloadName)
		input.ResponseContentDisposition = aws.String(disposition)
	}

	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %q: %w", key, err)
	}
	return req.URL, nil
}

// HeadObject returns the object's size, checksum and recovered filename.
func (s *ObjectStore) HeadObject(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %q not found: %w", key, err)
		}
		return nil, fmt.Errorf("failed to head object %q: %w", key, err)
	}

	info := &objectstore.ObjectInfo{
		Size: aws.ToInt64(out.ContentLength),
		Name: objectstore.FilenameFromKey(key),
	}
	if out.ETag != nil {
		info.Checksum = strings.Trim(*out.ETag, `"`)
	}
	return info, nil
}

// DeleteObject removes a single object. S3 DeleteObject already succeeds
// on absent keys, which gives the idempotency the contract requires.
func (s *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}

// DeleteObjects removes a batch of objects using S3's DeleteObjects API,
// splitting into 1000-key batches as the API requires.
func (s *ObjectStore) DeleteObjects(ctx context.Context, keys []string) error {
	for i := 0; i < len(keys); i += maxDeleteBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + maxDeleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete object batch: %w", err)
		}

		for _, deleteErr := range result.Errors {
			key := aws.ToString(deleteErr.Key)
			code := aws.ToString(deleteErr.Code)
			if code == "NoSuchKey" {
				continue
			}
			return fmt.Errorf("failed to delete object %q: %s: %s",
				key, code, aws.ToString(deleteErr.Message))
		}
	}
	return nil
}

// CopyObject performs a server-side copy from sourceKey to destKey.
func (s *ObjectStore) CopyObject(ctx context.Context, sourceKey string, destKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(s.bucket + "/" + sourceKey),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object %q to %q: %w", sourceKey, destKey, err)
	}
	return nil
}

// Healthcheck verifies bucket access.
func (s *ObjectStore) Healthcheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q is not reachable: %w", s.bucket, err)
	}
	return nil
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

// Interface conformance check.
var _ objectstore.ObjectStore = (*ObjectStore)(nil)
