package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

// TrainingEvidenceRepo intentionally exposes no update or delete: evidence is
// immutable once written.
type TrainingEvidenceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.TrainingEvidence) (*types.TrainingEvidence, error)
	GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TrainingEvidence, error)
	GetBySessionID(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error)
}

type trainingEvidenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingEvidenceRepo(db *gorm.DB, baseLog *logger.Logger) TrainingEvidenceRepo {
	repoLog := baseLog.With("repo", "TrainingEvidenceRepo")
	return &trainingEvidenceRepo{db: db, log: repoLog}
}

// Create inserts the record. When a concurrent generation wins the unique
// (tenant_id, session_id) race, the stored winner is returned instead of an
// error, so generation stays idempotent end to end.
func (r *trainingEvidenceRepo) Create(ctx context.Context, tx *gorm.DB, row *types.TrainingEvidence) (*types.TrainingEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, fmt.Errorf("nil evidence: %w", errs.ErrInvalidArgument)
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			existing, getErr := r.GetBySessionID(ctx, tx, row.TenantID, row.SessionID)
			if getErr != nil {
				return nil, err
			}
			return existing, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *trainingEvidenceRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TrainingEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || id == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.TrainingEvidence
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *trainingEvidenceRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) (*types.TrainingEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || sessionID == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.TrainingEvidence
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}
