package encoderstate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// MinIOStore keeps blobs in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOStore creates a store writing under prefix in bucket.
func NewMinIOStore(client *minio.Client, bucket, prefix string) *MinIOStore {
	return &MinIOStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *MinIOStore) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put uploads the blob in a single PutObject call, which S3 applies
// atomically.
func (s *MinIOStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("uploading state object %s: %w", s.key(name), err)
	}
	return nil
}

func (s *MinIOStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(key, err)
	}
	return data, nil
}

func (s *MinIOStore) translate(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return apperrors.Newf("load", apperrors.ErrNotFound, "state object %s/%s does not exist", s.bucket, key)
	}
	return fmt.Errorf("reading state object %s/%s: %w", s.bucket, key, err)
}
