package providers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/platform/gcs"
)

const GCSArchiveProviderName = "gcsarchive"

// GCSArchiveProvider drops evidence into a bucket as the tenant's
// retention archive. Object keys embed the content hash, so re-uploads
// of the same record land on the same object.
type GCSArchiveProvider struct {
	log    *logger.Logger
	bucket gcs.BucketService
}

func NewGCSArchiveProvider(log *logger.Logger, bucket gcs.BucketService) *GCSArchiveProvider {
	return &GCSArchiveProvider{
		log:    log.With("provider", GCSArchiveProviderName),
		bucket: bucket,
	}
}

func (p *GCSArchiveProvider) Name() string { return GCSArchiveProviderName }

func (p *GCSArchiveProvider) UploadEvidence(ctx context.Context, req UploadRequest) (*UploadReceipt, error) {
	if req.Evidence == nil {
		return nil, &Error{Code: "invalid_request", Retryable: false, Err: fmt.Errorf("nil evidence")}
	}
	if p.bucket == nil {
		return nil, &Error{Code: "not_configured", Retryable: false, Err: fmt.Errorf("archive bucket not configured")}
	}

	key := fmt.Sprintf("evidence/%s/%s/%s.json", req.TenantSlug, req.Evidence.SessionID, req.Evidence.ContentHash)
	ref, err := p.bucket.UploadObject(ctx, key, "application/json", bytes.NewReader(req.Evidence.Body))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: "canceled", Retryable: false, Err: ctx.Err()}
		}
		return nil, &Error{Code: "storage", Retryable: true, Err: err}
	}

	if len(req.Certificate) > 0 {
		certKey := fmt.Sprintf("evidence/%s/%s/%s.png", req.TenantSlug, req.Evidence.SessionID, req.Evidence.ContentHash)
		if _, err := p.bucket.UploadObject(ctx, certKey, "image/png", bytes.NewReader(req.Certificate)); err != nil {
			return nil, &Error{Code: "storage", Retryable: true, Err: err}
		}
	}

	return &UploadReceipt{ProviderRef: ref, StoredAt: time.Now().UTC()}, nil
}
