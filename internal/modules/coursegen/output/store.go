package output

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/omya-backend/internal/platform/gcp"
)

// Store persists one artifact under key and returns where it landed.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// LocalStore treats keys as filesystem paths.
type LocalStore struct{}

func (LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if dir := filepath.Dir(key); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(key, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// BucketStore uploads artifacts to Cloud Storage.
type BucketStore struct {
	Bucket gcp.BucketService
}

func (s BucketStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(key)), "/")
	objectKey = strings.TrimPrefix(objectKey, "./")
	if err := s.Bucket.UploadFile(ctx, objectKey, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return s.Bucket.URI(objectKey), nil
}
