package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/repos"
	"github.com/attestra/attestra-backend/internal/types"
)

// Audit event types.
const (
	AuditSessionStarted     = "session.started"
	AuditSessionEvaluated   = "session.evaluated"
	AuditSessionAbandoned   = "session.abandoned"
	AuditRemediationStarted = "session.remediation_started"
	AuditEvidenceGenerated  = "evidence.generated"
	AuditUploadSucceeded    = "upload.succeeded"
	AuditUploadFailed       = "upload.failed"
)

type AuditService interface {
	Record(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, employeeID *uuid.UUID, eventType string, metadata map[string]interface{})
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.AuditEvent, error)
}

type auditService struct {
	db        *gorm.DB
	log       *logger.Logger
	auditRepo repos.AuditEventRepo
}

func NewAuditService(db *gorm.DB, baseLog *logger.Logger, auditRepo repos.AuditEventRepo) AuditService {
	return &auditService{
		db:        db,
		log:       baseLog.With("service", "AuditService"),
		auditRepo: auditRepo,
	}
}

// Record is best-effort: a failed audit write is logged, never propagated,
// so it cannot roll back the mutation it describes.
func (s *auditService) Record(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, employeeID *uuid.UUID, eventType string, metadata map[string]interface{}) {
	var meta datatypes.JSON
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.log.Warn("failed to encode audit metadata", "type", eventType, "error", err)
		} else {
			meta = datatypes.JSON(raw)
		}
	}

	row := &types.AuditEvent{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EmployeeID: employeeID,
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Metadata:   meta,
	}
	if _, err := s.auditRepo.Create(ctx, tx, []*types.AuditEvent{row}); err != nil {
		s.log.Warn("failed to write audit event", "type", eventType, "tenant_id", tenantID, "error", err)
	}
}

func (s *auditService) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
	return s.auditRepo.ListByTenant(ctx, tx, tenantID, limit)
}
