package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/mindfocus/internal/config"
)

// Object key prefixes.
const (
	SessionExportPrefix = "sessions/"
	CalibrationPrefix   = "calibrations/"
)

// SessionExportKey is where a closed session's export is archived.
func SessionExportKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s%s.json", SessionExportPrefix, sessionID)
}

// CalibrationKey is where the raw samples of a calibration run are archived.
func CalibrationKey(userID, runID uuid.UUID) string {
	return fmt.Sprintf("%s%s/%s.json", CalibrationPrefix, userID, runID)
}

// Archive keeps JSON documents (session exports, calibration captures) in
// a MinIO bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

func NewArchive(cfg config.MinIOConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// PutJSON stores v as a JSON document under key, replacing any previous one.
func (a *Archive) PutJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetObject returns the stored document. A missing key yields ErrNotFound.
func (a *Archive) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	// The request is only sent on first access.
	if _, err := obj.Stat(); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes the document under key. Removing a missing key is
// not an error.
func (a *Archive) DeleteObject(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Expire removes every document under prefix last modified before cutoff
// and returns how many were removed.
func (a *Archive) Expire(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	expired := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	listed := 0
	listDone := make(chan struct{})
	go func() {
		defer close(listDone)
		defer close(expired)
		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				listErr <- fmt.Errorf("list %s: %w", prefix, obj.Err)
				return
			}
			if !obj.LastModified.Before(cutoff) {
				continue
			}
			select {
			case expired <- minio.ObjectInfo{Key: obj.Key}:
				listed++
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	var firstErr error
	for res := range a.client.RemoveObjects(ctx, a.bucket, expired, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", res.ObjectName, res.Err)
		}
	}
	<-listDone
	removed := listed - failed

	select {
	case err := <-listErr:
		return removed, err
	default:
	}
	if failed > 0 {
		return removed, fmt.Errorf("%d of %d expired objects not removed: %w", failed, listed, firstErr)
	}
	return removed, nil
}

// Ping checks MinIO connectivity.
func (a *Archive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
