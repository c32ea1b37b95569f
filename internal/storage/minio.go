package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/classguard/internal/config"
)

// Blob key prefixes. Enrollment originals, class photo originals and
// redacted outputs live under separate prefixes so a reset can sweep them
// without touching anything else in the bucket.
const (
	PrefixEnrollments = "enrollments/"
	PrefixClassPhotos = "classphotos/"
	PrefixResults     = "results/"
)

// blobExt maps a content type to the key extension. Only JPEG and PNG are
// accepted upstream by the decoder.
func blobExt(contentType string) string {
	if contentType == "image/png" {
		return ".png"
	}
	return ".jpg"
}

// EnrollmentKey builds the blob key for an enrollment original.
func EnrollmentKey(studentName, contentType string) string {
	return fmt.Sprintf("%s%s_%s%s", PrefixEnrollments, studentName, uuid.New().String(), blobExt(contentType))
}

// ClassPhotoKey builds the blob key for a class photo original.
func ClassPhotoKey(className, contentType string) string {
	return fmt.Sprintf("%s%s/%s_%s%s", PrefixClassPhotos, className,
		time.Now().UTC().Format("20060102_150405"), uuid.New().String(), blobExt(contentType))
}

// ResultKey builds the blob key for a processed output artifact. The
// extension follows the stored content type: PNG when faces were
// redacted, the source format otherwise.
func ResultKey(resultID uuid.UUID, contentType string) string {
	return fmt.Sprintf("%s%s%s", PrefixResults, resultID.String(), blobExt(contentType))
}

// BlobStore holds image artifacts in MinIO: enrollment originals, class
// photo originals and redacted outputs.
type BlobStore struct {
	client *minio.Client
	bucket string
}

func NewBlobStore(cfg config.MinIOConfig) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads data under the given key.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get retrieves data by key.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes one object.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// DeleteBatch removes multiple objects in a single batch request.
func (s *BlobStore) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// List returns all object keys under the given prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Ping checks MinIO connectivity.
func (s *BlobStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
