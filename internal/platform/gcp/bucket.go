package gcp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// BucketConfig selects the bucket and an optional key prefix for artifacts.
// A non-empty EmulatorHost targets a fake-gcs style emulator without auth.
type BucketConfig struct {
	Bucket       string
	Prefix       string
	EmulatorHost string
}

// BucketService writes pipeline artifacts to Cloud Storage.
type BucketService interface {
	UploadFile(ctx context.Context, key string, file io.Reader) error
	URI(key string) string
	Delete(ctx context.Context, key string) error
	Close() error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucket        string
	prefix        string
}

func NewBucketService(ctx context.Context, log *logger.Logger, cfg BucketConfig) (BucketService, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing output bucket name")
	}
	stClient, err := newStorageClient(ctx, cfg.EmulatorHost)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "BucketService")
	serviceLog.Info("Object storage initialized",
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"emulator_host", cfg.EmulatorHost,
	)
	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func newStorageClient(ctx context.Context, emulatorHost string) (*storage.Client, error) {
	emulatorHost = strings.TrimRight(strings.TrimSpace(emulatorHost), "/")
	if emulatorHost == "" {
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	}
	u, err := url.Parse(emulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", emulatorHost)
	}
	_ = os.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
	return storage.NewClient(ctx, option.WithoutAuthentication())
}

func (bs *bucketService) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if bs.prefix == "" {
		return key
	}
	return bs.prefix + "/" + key
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	objKey := bs.objectKey(key)
	w := bs.storageClient.Bucket(bs.bucket).Object(objKey).NewWriter(ctx)
	if ct := ContentTypeForKey(objKey); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *bucketService) URI(key string) string {
	return "gs://" + bs.bucket + "/" + bs.objectKey(key)
}

func (bs *bucketService) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.storageClient.Bucket(bs.bucket).Object(bs.objectKey(key)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".md"):
		return "text/markdown; charset=utf-8"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return ""
	}
}
