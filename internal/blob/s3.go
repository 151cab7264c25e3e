package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds S3 connection configuration
type Config struct {
	Region        string
	Bucket        string
	Endpoint      string // optional, for S3-compatible stores
	PublicBaseURL string // base URL objects are served from
	UsePathStyle  bool
}

// Object describes one stored artifact.
type Object struct {
	Key          string
	LastModified time.Time
	SizeBytes    int64
}

// S3Store is an S3-backed object store for pipeline artifacts.
type S3Store struct {
	client *s3.Client
	config *Config
	logger *slog.Logger
}

// NewS3Store creates an S3 store using the default AWS credential chain.
func NewS3Store(ctx context.Context, config *Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.UsePathStyle
	})

	logger.Info("S3 store initialized",
		slog.String("bucket", config.Bucket),
		slog.String("region", config.Region),
	)

	return &S3Store{client: client, config: config, logger: logger}, nil
}

// URL returns the public URL an object key is served from.
func (s *S3Store) URL(key string) string {
	return strings.TrimSuffix(s.config.PublicBaseURL, "/") + "/" + key
}

// Put uploads an object and returns its public URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	s.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.String("content_type", contentType),
	)

	return s.URL(key), nil
}

// Delete removes a single object. Deleting a missing key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// DeleteByPrefix removes every object under the given prefix and returns how
// many were deleted.
func (s *S3Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	var continuation *string

	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.config.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}

		if len(page.Contents) > 0 {
			identifiers := make([]types.ObjectIdentifier, 0, len(page.Contents))
			for _, obj := range page.Contents {
				identifiers = append(identifiers, types.ObjectIdentifier{Key: obj.Key})
			}

			_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.config.Bucket),
				Delete: &types.Delete{
					Objects: identifiers,
					Quiet:   aws.Bool(true),
				},
			})
			if err != nil {
				return deleted, fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
			}
			deleted += len(identifiers)
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}

	s.logger.Info("Deleted objects by prefix",
		slog.String("prefix", prefix),
		slog.Int("count", deleted),
	)

	return deleted, nil
}

// ListOlderThan returns every object under the prefix last modified before
// the cutoff.
func (s *S3Store) ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]Object, error) {
	var stale []Object
	var continuation *string

	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.config.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}
			if obj.LastModified.Before(cutoff) {
				size := int64(0)
				if obj.Size != nil {
					size = *obj.Size
				}
				stale = append(stale, Object{
					Key:          *obj.Key,
					LastModified: *obj.LastModified,
					SizeBytes:    size,
				})
			}
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}

	return stale, nil
}
