package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/attestra/attestra-backend/internal/types"
)

// UploadRequest is one delivery of an evidence record to an external
// compliance system. Target and Credential come from the tenant's
// compliance configuration, never from the evidence itself.
type UploadRequest struct {
	TenantSlug  string
	Target      string
	Credential  string
	Evidence    *types.TrainingEvidence
	Body        *types.EvidenceBody
	Certificate []byte
}

// UploadReceipt is the provider's acknowledgement of a stored record.
type UploadReceipt struct {
	ProviderRef string
	StoredAt    time.Time
}

// Error classifies a failed upload attempt. Retryable failures are
// transient transport or provider conditions; everything else (bad
// credentials, rejected payloads) must not be retried.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// ComplianceProvider performs exactly one upload attempt per call.
// Retry policy lives with the caller, not the provider.
type ComplianceProvider interface {
	Name() string
	UploadEvidence(ctx context.Context, req UploadRequest) (*UploadReceipt, error)
}
