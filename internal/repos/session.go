package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/lifecycle"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

type TrainingSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.TrainingSession) (*types.TrainingSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TrainingSession, error)
	GetActiveByEmployee(ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID) (*types.TrainingSession, error)
	ListByEmployee(ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID) ([]*types.TrainingSession, error)
	UpdateVersioned(ctx context.Context, tx *gorm.DB, row *types.TrainingSession, expectedVersion int64) error
	Delete(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error
}

type trainingSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingSessionRepo(db *gorm.DB, baseLog *logger.Logger) TrainingSessionRepo {
	repoLog := baseLog.With("repo", "TrainingSessionRepo")
	return &trainingSessionRepo{db: db, log: repoLog}
}

func (r *trainingSessionRepo) Create(ctx context.Context, tx *gorm.DB, row *types.TrainingSession) (*types.TrainingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, fmt.Errorf("nil session: %w", errs.ErrInvalidArgument)
	}
	if row.Version == 0 {
		row.Version = 1
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *trainingSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.TrainingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || id == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.TrainingSession
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

func (r *trainingSessionRepo) GetActiveByEmployee(ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID) (*types.TrainingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || employeeID == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.TrainingSession
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ? AND status NOT IN ?", tenantID, employeeID,
			[]string{lifecycle.StatusPassed, lifecycle.StatusExhausted, lifecycle.StatusAbandoned}).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *trainingSessionRepo) ListByEmployee(ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID) ([]*types.TrainingSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []*types.TrainingSession
	if tenantID == uuid.Nil || employeeID == uuid.Nil {
		return rows, nil
	}

	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateVersioned writes every mutable session field guarded by the version
// the caller last read. A lost race surfaces as ErrVersionConflict; writes
// are never merged. On success row.Version reflects the stored value.
func (r *trainingSessionRepo) UpdateVersioned(ctx context.Context, tx *gorm.DB, row *types.TrainingSession, expectedVersion int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil || row.ID == uuid.Nil || row.TenantID == uuid.Nil {
		return fmt.Errorf("invalid session row: %w", errs.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingSession{}).
		Where("id = ? AND tenant_id = ? AND version = ?", row.ID, row.TenantID, expectedVersion).
		Updates(map[string]interface{}{
			"status":          row.Status,
			"attempt_number":  row.AttemptNumber,
			"curriculum":      row.Curriculum,
			"aggregate_score": row.AggregateScore,
			"weak_areas":      row.WeakAreas,
			"completed_at":    row.CompletedAt,
			"version":         expectedVersion + 1,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := transaction.WithContext(ctx).
			Model(&types.TrainingSession{}).
			Where("id = ? AND tenant_id = ?", row.ID, row.TenantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errs.ErrNotFound
		}
		return errs.ErrVersionConflict
	}
	row.Version = expectedVersion + 1
	row.UpdatedAt = now
	return nil
}

// Delete removes a session row outright. Used only to compensate an attempt
// whose curriculum never materialized; established sessions end through the
// transition table instead.
func (r *trainingSessionRepo) Delete(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || id == uuid.Nil {
		return errs.ErrNotFound
	}

	res := transaction.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&types.TrainingSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
