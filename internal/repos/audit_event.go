package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

type AuditEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.AuditEvent) (int, error)
	ListByTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.AuditEvent, error)
}

type auditEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	repoLog := baseLog.With("repo", "AuditEventRepo")
	return &auditEventRepo{db: db, log: repoLog}
}

func (r *auditEventRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.AuditEvent) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return 0, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *auditEventRepo) ListByTenant(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []*types.AuditEvent
	if tenantID == uuid.Nil {
		return rows, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	if err := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
