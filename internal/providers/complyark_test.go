package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testEvidence() *types.TrainingEvidence {
	return &types.TrainingEvidence{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		SessionID:     uuid.New(),
		EmployeeID:    uuid.New(),
		SchemaVersion: 1,
		Body:          datatypes.JSON([]byte(`{"outcome":{"passed":true}}`)),
		ContentHash:   "abc123",
		GeneratedAt:   time.Now().UTC(),
	}
}

func TestComplyArkUploadSuccess(t *testing.T) {
	var gotAuth, gotIdem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/records" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"record_id":"rec-42","stored_at":"2026-01-02T03:04:05Z"}`))
	}))
	defer srv.Close()

	p := NewComplyArkProvider(testLogger(t), srv.Client())
	receipt, err := p.UploadEvidence(context.Background(), UploadRequest{
		TenantSlug: "acme",
		Target:     srv.URL,
		Credential: "secret-key",
		Evidence:   testEvidence(),
	})
	if err != nil {
		t.Fatalf("UploadEvidence: %v", err)
	}
	if receipt.ProviderRef != "rec-42" {
		t.Fatalf("provider ref: want=rec-42 got=%s", receipt.ProviderRef)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("authorization header: got=%q", gotAuth)
	}
	if gotIdem != "abc123" {
		t.Fatalf("idempotency key: got=%q", gotIdem)
	}
}

func TestComplyArkUploadClassification(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantCode      string
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, false, "auth"},
		{"forbidden", http.StatusForbidden, `{}`, false, "auth"},
		{"rate limited", http.StatusTooManyRequests, `{}`, true, "http_429"},
		{"server error", http.StatusInternalServerError, `{}`, true, "http_500"},
		{"bad gateway", http.StatusBadGateway, `{}`, true, "http_502"},
		{"rejected payload", http.StatusUnprocessableEntity, `{"error":"bad schema"}`, false, "http_422"},
		{"teapot rejected", http.StatusTeapot, `{}`, false, "http_418"},
		{"unrecognized status treated transient", http.StatusTemporaryRedirect, `{}`, true, "http_307"},
		{"unparseable ack", http.StatusOK, `not json`, true, "bad_ack"},
		{"ack without id", http.StatusOK, `{}`, true, "bad_ack"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewComplyArkProvider(testLogger(t), srv.Client())
			_, err := p.UploadEvidence(context.Background(), UploadRequest{
				TenantSlug: "acme",
				Target:     srv.URL,
				Credential: "k",
				Evidence:   testEvidence(),
			})
			if err == nil {
				t.Fatal("want error")
			}
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("want *providers.Error, got %T", err)
			}
			if pe.Retryable != tc.wantRetryable {
				t.Fatalf("retryable: want=%v got=%v (%v)", tc.wantRetryable, pe.Retryable, pe)
			}
			if pe.Code != tc.wantCode {
				t.Fatalf("code: want=%s got=%s", tc.wantCode, pe.Code)
			}
		})
	}
}

func TestComplyArkUploadNetworkErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	p := NewComplyArkProvider(testLogger(t), &http.Client{Timeout: 2 * time.Second})
	_, err := p.UploadEvidence(context.Background(), UploadRequest{
		TenantSlug: "acme",
		Target:     srv.URL,
		Credential: "k",
		Evidence:   testEvidence(),
	})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("want *providers.Error, got %v", err)
	}
	if !pe.Retryable || pe.Code != "network" {
		t.Fatalf("network failure: want retryable network error, got %v", pe)
	}
}

func TestComplyArkUploadMissingTarget(t *testing.T) {
	p := NewComplyArkProvider(testLogger(t), nil)
	_, err := p.UploadEvidence(context.Background(), UploadRequest{
		TenantSlug: "acme",
		Evidence:   testEvidence(),
	})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("want *providers.Error, got %v", err)
	}
	if pe.Retryable || pe.Code != "missing_target" {
		t.Fatalf("missing target: want non-retryable missing_target, got %v", pe)
	}
}

func TestRegistryLookup(t *testing.T) {
	ark := NewComplyArkProvider(testLogger(t), nil)
	reg, err := NewRegistry(ark)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got, err := reg.Get(ComplyArkProviderName)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != ComplyArkProviderName {
		t.Fatalf("name: got=%s", got.Name())
	}

	if _, err := reg.Get("nope"); err == nil {
		t.Fatal("unknown provider: want error")
	}

	if _, err := NewRegistry(ark, ark); err == nil {
		t.Fatal("duplicate provider: want error")
	}
}
