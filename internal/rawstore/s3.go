// Package rawstore optionally archives an Item's raw fetched body
// (HTML or feed XML) to S3, storing only the resulting object key
// alongside the Item row. The body itself is not SentryCore's to
// index or search (spec.md §1 Non-goals); this is archival only,
// grounded on the teacher's internal/agent/s3_storage.go.
package rawstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// Store archives raw Item bodies to S3 under prefix/<item_id>.json.gz.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config configures a Store.
type Config struct {
	Bucket string
	Prefix string // e.g. "sentrycore/raw/"
	Region string
}

// NewStore builds a Store and verifies bucket access up front, the same
// HeadBucket probe the teacher's S3Storage performs at construction.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("rawstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		logger.Warn("rawstore: bucket access check failed, continuing", "bucket", cfg.Bucket, "error", err.Error())
	}

	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) key(itemID string) string {
	return fmt.Sprintf("%s%s.json.gz", s.prefix, itemID)
}

// Put gzip-compresses and uploads raw, returning the object key to
// persist on the Item row.
func (s *Store) Put(ctx context.Context, itemID string, raw []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return "", fmt.Errorf("rawstore: compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("rawstore: compress: %w", err)
	}

	key := s.key(itemID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentEncoding: aws.String("gzip"),
		ContentType:     aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("rawstore: put %s: %w", key, err)
	}
	return key, nil
}

// Get fetches and decompresses a previously archived raw body.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("rawstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	gz, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("rawstore: decompress %s: %w", key, err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// Delete removes a previously archived object, e.g. when the owning
// Item row is purged.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("rawstore: delete %s: %w", key, err)
	}
	return nil
}
