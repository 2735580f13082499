package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/johnwmail/pasta/models"
	"github.com/johnwmail/pasta/utils"
)

// s3API is the subset of the S3 client used by S3ContentStore.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ContentStore keeps artifact content as objects named
// {prefix}{identifier}.{extension}.
type S3ContentStore struct {
	bucket string
	prefix string
	client s3API
	logger *slog.Logger
}

// NewS3ContentStore creates a store using the default AWS credential chain.
func NewS3ContentStore(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*S3ContentStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name must not be empty")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newS3ContentStore(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

func newS3ContentStore(client s3API, bucket, prefix string, logger *slog.Logger) *S3ContentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3ContentStore{
		bucket: bucket,
		prefix: normalizeS3Prefix(prefix),
		client: client,
		logger: logger,
	}
}

func (s *S3ContentStore) key(id, ext string) string {
	return applyS3Prefix(s.prefix, models.ContentKey(id, ext))
}

// Write uploads the object in a single PUT, which S3 applies atomically.
func (s *S3ContentStore) Write(ctx context.Context, id, ext string, content []byte) error {
	key := s.key(id, ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(utils.ContentTypeForExtension(ext)),
	})
	if err != nil {
		s.logger.Error("s3 put failed", "bucket", s.bucket, "key", key, "error", err)
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3ContentStore) Read(ctx context.Context, id, ext string) ([]byte, error) {
	key := s.key(id, ext)
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, ErrContentNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() {
		_ = obj.Body.Close()
	}()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", key, err)
	}
	return data, nil
}

// Rename copies the object to its new key and then removes the old one.
func (s *S3ContentStore) Rename(ctx context.Context, id, oldExt, newExt string) error {
	if oldExt == newExt {
		return nil
	}
	src := s.key(id, oldExt)
	dst := s.key(id, newExt)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + src)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("copy %s: %w", src, ErrContentNotFound)
		}
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := s.Delete(ctx, id, oldExt); err != nil {
		// Drop the copy so the source stays the only entry.
		if undoErr := s.Delete(context.WithoutCancel(ctx), id, newExt); undoErr != nil {
			s.logger.Error("rename left two s3 objects", "src", src, "dst", dst, "error", undoErr)
			return errors.Join(fmt.Errorf("remove %s after copy: %w", src, err), undoErr)
		}
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *S3ContentStore) Delete(ctx context.Context, id, ext string) error {
	key := s.key(id, ext)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3ContentStore) Close() error {
	return nil
}
