package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of S3 the mailbox needs. Implementations return an
// error wrapping ErrNotFound for missing keys.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	HeadObject(ctx context.Context, bucket, key string) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// S3Store keeps slots as objects. A PutObject becomes visible whole, so
// WriteAtomic is a single put.
type S3Store struct {
	bucket string
	prefix string
	client S3Client
}

func NewS3Store(bucket, prefix string, client S3Client) *S3Store {
	return &S3Store{bucket: bucket, prefix: prefix, client: client}
}

func (s *S3Store) key(slot string) (string, error) {
	if err := ValidateSlot(slot); err != nil {
		return "", err
	}
	if s.prefix == "" {
		return slot, nil
	}
	return s.prefix + "/" + slot, nil
}

func (s *S3Store) WriteAtomic(ctx context.Context, slot string, content []byte) error {
	key, err := s.key(slot)
	if err != nil {
		return err
	}
	return s.client.PutObject(ctx, s.bucket, key, content)
}

func (s *S3Store) Exists(ctx context.Context, slot string) (bool, error) {
	key, err := s.key(slot)
	if err != nil {
		return false, err
	}
	err = s.client.HeadObject(ctx, s.bucket, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3Store) Read(ctx context.Context, slot string) ([]byte, error) {
	key, err := s.key(slot)
	if err != nil {
		return nil, err
	}
	data, err := s.client.GetObject(ctx, s.bucket, key)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(slot)
	}
	return data, err
}

// Delete relies on S3 treating deletes of missing keys as success.
func (s *S3Store) Delete(ctx context.Context, slot string) error {
	key, err := s.key(slot)
	if err != nil {
		return err
	}
	return s.client.DeleteObject(ctx, s.bucket, key)
}

// AWSS3Client implements S3Client on top of the AWS SDK v2.
type AWSS3Client struct {
	s3Client *s3.Client
}

func NewAWSS3Client(s3Client *s3.Client) *AWSS3Client {
	return &AWSS3Client{s3Client: s3Client}
}

func (c *AWSS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) || isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (c *AWSS3Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", key, bucket, err)
	}
	return nil
}

func (c *AWSS3Client) HeadObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to head object %s in bucket %s: %w", key, bucket, err)
	}
	return nil
}

func (c *AWSS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, bucket, err)
	}
	return nil
}

// HeadObject has no body, so a missing key only surfaces as the "NotFound" code.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
