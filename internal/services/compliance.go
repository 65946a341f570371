package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/httpx"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/providers"
	"github.com/attestra/attestra-backend/internal/render"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/types"
)

// ComplianceService delivers evidence records to the tenant's configured
// provider. DispatchUpload is fire-and-forget: it persists a pending ledger
// row synchronously, hands the delivery to the dispatcher, and returns. The
// ledger row is the durable truth; the in-memory job is only an accelerant.
type ComplianceService interface {
	DispatchUpload(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID) error
	RunUpload(ctx context.Context, tenantID, uploadID uuid.UUID)
	RecoverPending(ctx context.Context) error
	ListBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.ComplianceUpload, error)
}

// pendingRecoveryBatch caps how many orphaned rows one boot sweep re-arms.
const pendingRecoveryBatch = 500

type complianceService struct {
	db           *gorm.DB
	log          *logger.Logger
	uploadRepo   repos.ComplianceUploadRepo
	evidenceRepo repos.TrainingEvidenceRepo
	employeeRepo repos.EmployeeRepo
	tenantConfig TenantConfigService
	registry     *providers.Registry
	renderer     render.CertificateRenderer
	dispatcher   Dispatcher

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	audit AuditService
}

// NewComplianceService wires the upload pipeline; renderer may be nil when
// certificate rendering is not configured.
func NewComplianceService(
	db *gorm.DB,
	baseLog *logger.Logger,
	uploadRepo repos.ComplianceUploadRepo,
	evidenceRepo repos.TrainingEvidenceRepo,
	employeeRepo repos.EmployeeRepo,
	tenantConfig TenantConfigService,
	registry *providers.Registry,
	renderer render.CertificateRenderer,
	dispatcher Dispatcher,
	audit AuditService,
) ComplianceService {
	return &complianceService{
		db:           db,
		log:          baseLog.With("service", "ComplianceService"),
		uploadRepo:   uploadRepo,
		evidenceRepo: evidenceRepo,
		employeeRepo: employeeRepo,
		tenantConfig: tenantConfig,
		registry:     registry,
		renderer:     renderer,
		dispatcher:   dispatcher,
		sleep:        sleepCtx,
		audit:        audit,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatchUpload is a guarded fast-exit sequence: no tenant config means
// no-op; an existing ledger row for (tenant, evidence, provider) is never
// re-attempted, even one that failed; an unknown provider key is logged and
// dropped. Only a brand-new row ever reaches the dispatcher.
func (cs *complianceService) DispatchUpload(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID) error {
	cfg, err := cs.tenantConfig.ComplianceConfig(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	if cfg == nil {
		cs.log.Debug("tenant has no compliance config, skipping upload", "tenant_id", tenantID)
		return nil
	}

	existing, err := cs.uploadRepo.GetByEvidenceAndProvider(ctx, tx, tenantID, evidenceID, cfg.Provider)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.Status == types.UploadStatusPending {
			// Crash recovery: a pending row without a live job is re-armed.
			cs.submit(tenantID, existing.ID)
		}
		return nil
	}

	if _, err := cs.registry.Get(cfg.Provider); err != nil {
		cs.log.Error("tenant compliance config names unknown provider", "tenant_id", tenantID, "provider", cfg.Provider)
		return nil
	}

	row := &types.ComplianceUpload{
		ID:          uuid.New(),
		TenantID:    tenantID,
		EvidenceID:  evidenceID,
		Provider:    cfg.Provider,
		Status:      types.UploadStatusPending,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}

	evidence, err := cs.evidenceRepo.GetByID(ctx, tx, tenantID, evidenceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			now := time.Now().UTC()
			msg := "referenced evidence not found"
			code := "evidence_not_found"
			row.Status = types.UploadStatusFailed
			row.LastError = &msg
			row.LastErrorCode = &code
			row.CompletedAt = &now
			_, cerr := cs.uploadRepo.Create(ctx, tx, row)
			return cerr
		}
		return err
	}
	row.SessionID = evidence.SessionID

	created, err := cs.uploadRepo.Create(ctx, tx, row)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// Lost the creation race; the winner's job owns delivery.
			return nil
		}
		return err
	}

	cs.submit(tenantID, created.ID)
	return nil
}

// RecoverPending re-arms pending ledger rows that lost their in-memory job,
// e.g. after a crash or restart. Run once at boot; duplicate jobs for the
// same row are harmless because terminal writes are guarded in storage.
func (cs *complianceService) RecoverPending(ctx context.Context) error {
	rows, err := cs.uploadRepo.ListPending(ctx, nil, pendingRecoveryBatch)
	if err != nil {
		return err
	}
	for _, row := range rows {
		cs.submit(row.TenantID, row.ID)
	}
	if len(rows) > 0 {
		cs.log.Info("re-armed pending uploads", "count", len(rows))
	}
	return nil
}

func (cs *complianceService) submit(tenantID, uploadID uuid.UUID) {
	jobName := fmt.Sprintf("compliance_upload:%s", uploadID)
	cs.dispatcher.Submit(jobName, func(jobCtx context.Context) {
		cs.RunUpload(jobCtx, tenantID, uploadID)
	})
}

// RunUpload drives one upload row to a terminal status, sleeping between
// retryable attempts. It is safe to call again for a row that already
// finished.
func (cs *complianceService) RunUpload(ctx context.Context, tenantID, uploadID uuid.UUID) {
	log := cs.log.With("tenant_id", tenantID, "upload_id", uploadID)

	upload, err := cs.uploadRepo.GetByID(ctx, nil, tenantID, uploadID)
	if err != nil {
		log.Error("failed to load upload row", "error", err)
		return
	}
	if upload.Status != types.UploadStatusPending {
		return
	}

	cfg, err := cs.tenantConfig.ComplianceConfig(ctx, nil, tenantID)
	if err != nil || cfg == nil {
		log.Error("compliance config unavailable for pending upload", "error", err)
		return
	}
	provider, err := cs.registry.Get(cfg.Provider)
	if err != nil {
		cs.finishFailed(ctx, upload, "unknown_provider", err.Error(), false)
		return
	}

	tenant, err := cs.tenantConfig.GetTenant(ctx, nil, tenantID)
	if err != nil {
		log.Error("failed to load tenant", "error", err)
		return
	}
	evidence, err := cs.evidenceRepo.GetByID(ctx, nil, tenantID, upload.EvidenceID)
	if err != nil {
		log.Error("failed to load evidence", "error", err)
		return
	}

	var body types.EvidenceBody
	if err := json.Unmarshal(evidence.Body, &body); err != nil {
		cs.finishFailed(ctx, upload, "corrupt_evidence", err.Error(), false)
		return
	}

	certificate, renderErr := cs.renderCertificate(ctx, tenant, evidence, &body)
	if renderErr != nil {
		// Rendering is deterministic, so retrying cannot help.
		cs.finishFailed(ctx, upload, "render", renderErr.Error(), false)
		return
	}

	req := providers.UploadRequest{
		TenantSlug:  tenant.Slug,
		Target:      cfg.Target,
		Credential:  cfg.Credential,
		Evidence:    evidence,
		Body:        &body,
		Certificate: certificate,
	}

	for attempt := upload.AttemptCount + 1; attempt <= upload.MaxAttempts; attempt++ {
		receipt, err := provider.UploadEvidence(ctx, req)
		if err == nil {
			now := time.Now().UTC()
			if uerr := cs.uploadRepo.UpdateFields(ctx, nil, tenantID, uploadID, map[string]interface{}{
				"status":        types.UploadStatusSucceeded,
				"attempt_count": attempt,
				"provider_ref":  receipt.ProviderRef,
				"retryable":     false,
				"completed_at":  now,
			}); uerr != nil {
				if errors.Is(uerr, errs.ErrConflict) {
					log.Debug("upload already finished by a concurrent job")
					return
				}
				log.Error("failed to record upload success", "error", uerr)
				return
			}
			cs.audit.Record(ctx, nil, tenantID, nil, AuditUploadSucceeded, map[string]interface{}{
				"upload_id":    uploadID.String(),
				"evidence_id":  upload.EvidenceID.String(),
				"provider":     provider.Name(),
				"provider_ref": receipt.ProviderRef,
				"attempts":     attempt,
			})
			log.Info("evidence uploaded", "provider", provider.Name(), "provider_ref", receipt.ProviderRef, "attempts", attempt)
			return
		}

		code, retryable := classifyProviderError(err)
		fields := map[string]interface{}{
			"attempt_count":   attempt,
			"last_error":      err.Error(),
			"last_error_code": code,
			"retryable":       retryable,
		}

		final := !retryable || attempt == upload.MaxAttempts
		if final {
			fields["status"] = types.UploadStatusFailed
			fields["completed_at"] = time.Now().UTC()
		}
		if uerr := cs.uploadRepo.UpdateFields(ctx, nil, tenantID, uploadID, fields); uerr != nil {
			if errors.Is(uerr, errs.ErrConflict) {
				log.Debug("upload already finished by a concurrent job")
				return
			}
			log.Error("failed to record upload attempt", "error", uerr)
			return
		}

		if final {
			cs.audit.Record(ctx, nil, tenantID, nil, AuditUploadFailed, map[string]interface{}{
				"upload_id":   uploadID.String(),
				"evidence_id": upload.EvidenceID.String(),
				"provider":    provider.Name(),
				"attempts":    attempt,
				"error_code":  code,
				"retryable":   retryable,
			})
			log.Warn("evidence upload failed", "provider", provider.Name(), "attempts", attempt, "error_code", code, "retryable", retryable)
			return
		}

		delay := httpx.BackoffDelay(attempt, cfg.Retry.InitialDelay(), cfg.Retry.MaxDelay())
		log.Debug("retrying evidence upload", "attempt", attempt, "delay", delay.String(), "error_code", code)
		if err := cs.sleep(ctx, delay); err != nil {
			log.Warn("upload retry loop interrupted", "error", err)
			return
		}
	}
}

func (cs *complianceService) renderCertificate(ctx context.Context, tenant *types.Tenant, evidence *types.TrainingEvidence, body *types.EvidenceBody) ([]byte, error) {
	if cs.renderer == nil {
		return nil, nil
	}

	employeeName := body.SessionSummary.EmployeeID
	if empID, err := uuid.Parse(body.SessionSummary.EmployeeID); err == nil {
		if emp, err := cs.employeeRepo.GetByID(ctx, nil, tenant.ID, empID); err == nil {
			employeeName = emp.FirstName + " " + emp.LastName
		}
	}

	outcome := body.SessionSummary.Status
	titles := make([]string, 0, len(body.Modules))
	for _, m := range body.Modules {
		titles = append(titles, m.Title)
	}

	return cs.renderer.Render(render.CertificateData{
		TenantName:    tenant.DisplayName,
		EmployeeName:  employeeName,
		RoleProfileID: body.PolicyAttestation.RoleProfileID,
		SessionID:     body.SessionSummary.SessionID,
		ContentHash:   evidence.ContentHash,
		Outcome:       outcome,
		Score:         body.Outcome.AggregateScore,
		GeneratedAt:   evidence.GeneratedAt,
		ModuleTitles:  titles,
	})
}

func (cs *complianceService) finishFailed(ctx context.Context, upload *types.ComplianceUpload, code, msg string, retryable bool) {
	now := time.Now().UTC()
	if err := cs.uploadRepo.UpdateFields(ctx, nil, upload.TenantID, upload.ID, map[string]interface{}{
		"status":          types.UploadStatusFailed,
		"last_error":      msg,
		"last_error_code": code,
		"retryable":       retryable,
		"completed_at":    now,
	}); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			cs.log.Debug("upload already finished by a concurrent job", "upload_id", upload.ID)
			return
		}
		cs.log.Error("failed to mark upload failed", "upload_id", upload.ID, "error", err)
		return
	}
	cs.audit.Record(ctx, nil, upload.TenantID, nil, AuditUploadFailed, map[string]interface{}{
		"upload_id":   upload.ID.String(),
		"evidence_id": upload.EvidenceID.String(),
		"provider":    upload.Provider,
		"error_code":  code,
		"retryable":   retryable,
	})
}

func (cs *complianceService) ListBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.ComplianceUpload, error) {
	return cs.uploadRepo.GetBySessionID(ctx, tx, tenantID, sessionID)
}

func classifyProviderError(err error) (string, bool) {
	var pe *providers.Error
	if errors.As(err, &pe) {
		return pe.Code, pe.Retryable
	}
	return "unknown", true
}
