package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrEmptyKey is returned for writes without an object key
var ErrEmptyKey = errors.New("empty key")

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// WriteRequest is one object to store
type WriteRequest struct {
	Key         string
	Data        []byte
	ContentType string
}

// Sink stores encoded documents as S3 objects
type Sink struct {
	client s3API
	bucket string
	prefix string
}

// New creates a sink writing to bucket, under prefix when it is not empty.
func New(client s3API, bucket, prefix string) *Sink {
	if client == nil {
		panic("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		panic("bucket is required")
	}
	return &Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Write puts req.Data at the prefixed key. Keys are not path-cleaned.
func (s *Sink) Write(ctx context.Context, req WriteRequest) (string, error) {
	if req.Key == "" {
		return "", ErrEmptyKey
	}

	key := strings.TrimLeft(req.Key, "/")
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(req.Data),
		ContentLength: aws.Int64(int64(len(req.Data))),
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Archive stores an encoded document and returns its s3:// location.
func (s *Sink) Archive(ctx context.Context, key, contentType string, data []byte) (string, error) {
	return s.Write(ctx, WriteRequest{Key: key, Data: data, ContentType: contentType})
}

// ParseURL splits an s3://bucket/key location.
func ParseURL(u string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(u, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", u)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs a bucket and a key: %q", u)
	}
	return bucket, key, nil
}
