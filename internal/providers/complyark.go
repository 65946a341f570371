package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/attestra/attestra-backend/internal/pkg/httpx"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
)

const ComplyArkProviderName = "complyark"

// ComplyArkProvider posts evidence records to a ComplyArk-compatible
// REST endpoint. The target URL and API credential are per-tenant.
type ComplyArkProvider struct {
	log        *logger.Logger
	httpClient *http.Client
}

func NewComplyArkProvider(log *logger.Logger, httpClient *http.Client) *ComplyArkProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ComplyArkProvider{
		log:        log.With("provider", ComplyArkProviderName),
		httpClient: httpClient,
	}
}

func (p *ComplyArkProvider) Name() string { return ComplyArkProviderName }

type complyArkRecord struct {
	ExternalID     string          `json:"external_id"`
	TenantSlug     string          `json:"tenant_slug"`
	SchemaVersion  int             `json:"schema_version"`
	ContentHash    string          `json:"content_hash"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Record         json.RawMessage `json:"record"`
	CertificatePNG string          `json:"certificate_png,omitempty"`
}

type complyArkAck struct {
	RecordID string    `json:"record_id"`
	StoredAt time.Time `json:"stored_at"`
}

func (p *ComplyArkProvider) UploadEvidence(ctx context.Context, req UploadRequest) (*UploadReceipt, error) {
	if req.Evidence == nil {
		return nil, &Error{Code: "invalid_request", Retryable: false, Err: fmt.Errorf("nil evidence")}
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, &Error{Code: "missing_target", Retryable: false, Err: fmt.Errorf("tenant compliance target not configured")}
	}

	payload := complyArkRecord{
		ExternalID:    req.Evidence.ID.String(),
		TenantSlug:    req.TenantSlug,
		SchemaVersion: req.Evidence.SchemaVersion,
		ContentHash:   req.Evidence.ContentHash,
		GeneratedAt:   req.Evidence.GeneratedAt,
		Record:        json.RawMessage(req.Evidence.Body),
	}
	if len(req.Certificate) > 0 {
		payload.CertificatePNG = base64.StdEncoding.EncodeToString(req.Certificate)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Code: "encode", Retryable: false, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(target, "/")+"/v1/records", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: "invalid_request", Retryable: false, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Evidence.ContentHash)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: "canceled", Retryable: false, Err: ctx.Err()}
		}
		return nil, &Error{Code: "network", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return nil, &Error{Code: "network", Retryable: true, Err: readErr}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ack complyArkAck
		if err := json.Unmarshal(raw, &ack); err != nil {
			return nil, &Error{Code: "bad_ack", Retryable: true, Err: err}
		}
		if ack.RecordID == "" {
			return nil, &Error{Code: "bad_ack", Retryable: true, Err: fmt.Errorf("ack missing record_id")}
		}
		storedAt := ack.StoredAt
		if storedAt.IsZero() {
			storedAt = time.Now().UTC()
		}
		return &UploadReceipt{ProviderRef: ack.RecordID, StoredAt: storedAt}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{
			Code:      "auth",
			Retryable: false,
			Err:       fmt.Errorf("provider rejected credential: %d", resp.StatusCode),
		}

	case httpx.IsRetryableHTTPStatus(resp.StatusCode):
		return nil, &Error{
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Retryable: true,
			Err:       fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncateBody(raw)),
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &Error{
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Retryable: false,
			Err:       fmt.Errorf("provider rejected record: %d: %s", resp.StatusCode, truncateBody(raw)),
		}

	default:
		// Anything unrecognized is treated as transient; the retry budget
		// bounds the damage if the provider really is refusing the record.
		return nil, &Error{
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Retryable: true,
			Err:       fmt.Errorf("unexpected provider response: %d: %s", resp.StatusCode, truncateBody(raw)),
		}
	}
}

func truncateBody(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
