package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
)

// maxDeleteKeys is the S3 limit on keys per DeleteObjects request.
const maxDeleteKeys = 1000

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	// DeleteImages removes listing image objects and returns how many were deleted.
	DeleteImages(ctx context.Context, keys []string) (int, error)
}

// s3API is the part of *s3.Client used here.
type s3API interface {
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	bucket string
	client s3API
	log    *zap.Logger
}

// NewS3Storage creates a new S3 storage service. Without a configured bucket
// it returns a storage that deletes nothing.
func NewS3Storage(cfg *config.Config, log *zap.Logger) (IS3Storage, error) {
	if cfg.AwsS3Bucket == "" {
		log.Info("AWS_S3_BUCKET not set, listing images will not be purged")
		return disabledStorage{}, nil
	}

	opts := []func(*aws_config.LoadOptions) error{aws_config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Storage(cfg.AwsS3Bucket, s3.NewFromConfig(awsCfg), log), nil
}

func newS3Storage(bucket string, client s3API, log *zap.Logger) *s3Storage {
	return &s3Storage{bucket: bucket, client: client, log: log}
}

// DeleteImages deletes keys in chunks of maxDeleteKeys. It stops at the first
// failed request; per-key errors are logged and counted as not deleted.
func (s *s3Storage) DeleteImages(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += maxDeleteKeys {
		end := start + maxDeleteKeys
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %d objects from %s: %w", len(objects), s.bucket, err)
		}

		for _, e := range out.Errors {
			s.log.Warn("failed to delete listing image",
				zap.String("key", aws.ToString(e.Key)),
				zap.String("code", aws.ToString(e.Code)),
				zap.String("message", aws.ToString(e.Message)))
		}
		deleted += len(objects) - len(out.Errors)
	}
	return deleted, nil
}

type disabledStorage struct{}

func (disabledStorage) DeleteImages(ctx context.Context, keys []string) (int, error) { return 0, nil }
