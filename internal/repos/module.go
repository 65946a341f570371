package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

type TrainingModuleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.TrainingModule) ([]*types.TrainingModule, error)
	GetBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.TrainingModule, error)
	GetBySessionAndIndex(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID, moduleIndex int) (*types.TrainingModule, error)
	UpdateVersioned(ctx context.Context, tx *gorm.DB, row *types.TrainingModule, expectedVersion int64) error
}

type trainingModuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingModuleRepo(db *gorm.DB, baseLog *logger.Logger) TrainingModuleRepo {
	repoLog := baseLog.With("repo", "TrainingModuleRepo")
	return &trainingModuleRepo{db: db, log: repoLog}
}

func (r *trainingModuleRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.TrainingModule) ([]*types.TrainingModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.TrainingModule{}, nil
	}
	for _, row := range rows {
		if row.Version == 0 {
			row.Version = 1
		}
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trainingModuleRepo) GetBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.TrainingModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []*types.TrainingModule
	if tenantID == uuid.Nil || sessionID == uuid.Nil {
		return rows, nil
	}

	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Order("module_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trainingModuleRepo) GetBySessionAndIndex(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID, moduleIndex int) (*types.TrainingModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || sessionID == uuid.Nil || moduleIndex < 0 {
		return nil, errs.ErrNotFound
	}

	var row types.TrainingModule
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ? AND module_index = ?", tenantID, sessionID, moduleIndex).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *trainingModuleRepo) UpdateVersioned(ctx context.Context, tx *gorm.DB, row *types.TrainingModule, expectedVersion int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil || row.ID == uuid.Nil || row.TenantID == uuid.Nil {
		return fmt.Errorf("invalid module row: %w", errs.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingModule{}).
		Where("id = ? AND tenant_id = ? AND version = ?", row.ID, row.TenantID, expectedVersion).
		Updates(map[string]interface{}{
			"status":             row.Status,
			"content":            row.Content,
			"scenario_responses": row.ScenarioResponses,
			"quiz_answers":       row.QuizAnswers,
			"module_score":       row.ModuleScore,
			"version":            expectedVersion + 1,
			"updated_at":         now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := transaction.WithContext(ctx).
			Model(&types.TrainingModule{}).
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
