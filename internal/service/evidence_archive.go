package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrArchiveUploadFailed = errors.New("failed to archive event payload")

// EvidenceArchive stores raw webhook payloads for audit. The reconcilers
// never read from it; it exists so disputed settlements can be traced back to
// the exact bytes the ledger delivered.
type EvidenceArchive interface {
	// ArchiveEvent stores a raw payload under the signal's namespace and
	// returns the object key.
	ArchiveEvent(ctx context.Context, signal string, payload []byte) (string, error)
}

// MinIOEvidenceArchive implements EvidenceArchive on S3-compatible storage.
type MinIOEvidenceArchive struct {
	client *minio.Client
	bucket string
}

func NewMinIOEvidenceArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOEvidenceArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	a := &MinIOEvidenceArchive{client: client, bucket: bucket}
	if err := a.ensureBucketExists(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *MinIOEvidenceArchive) ensureBucketExists(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create archive bucket: %w", err)
		}
	}
	return nil
}

func (a *MinIOEvidenceArchive) ArchiveEvent(ctx context.Context, signal string, payload []byte) (string, error) {
	now := time.Now().UTC()
	objectKey := fmt.Sprintf("%s/%s/%s.json", signal, now.Format("2006-01-02"), uuid.NewString())
	_, err := a.client.PutObject(ctx, a.bucket, objectKey, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"Signal":      signal,
			"Received-At": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveUploadFailed, err)
	}
	return objectKey, nil
}
