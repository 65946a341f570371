package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
)

// BucketService writes evidence archives to a GCS bucket. Keys are
// caller-chosen; objects are never overwritten by the archive provider.
type BucketService interface {
	UploadObject(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
	DownloadObject(ctx context.Context, key string) (io.ReadCloser, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
	Close() error
}

type bucketService struct {
	log          *logger.Logger
	client       *storage.Client
	bucketName   string
	emulatorHost string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	bucketName := strings.TrimSpace(os.Getenv("EVIDENCE_GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing EVIDENCE_GCS_BUCKET_NAME")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	emulatorHost := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))
	var opts []option.ClientOption
	if emulatorHost != "" {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &bucketService{
		log:          log.With("service", "BucketService"),
		client:       client,
		bucketName:   bucketName,
		emulatorHost: emulatorHost,
	}, nil
}

func (s *bucketService) UploadObject(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key required")
	}

	w := s.client.Bucket(s.bucketName).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %q: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucketName, key), nil
}

func (s *bucketService) DownloadObject(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	return r, nil
}

func (s *bucketService) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucketName).Object(key).Attrs(ctx)
	if err == storage.ErrObjectNotExist {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *bucketService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
