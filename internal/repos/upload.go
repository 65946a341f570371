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

type ComplianceUploadRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.ComplianceUpload) (*types.ComplianceUpload, error)
	GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.ComplianceUpload, error)
	GetByEvidenceAndProvider(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID, provider string) (*types.ComplianceUpload, error)
	GetBySessionID(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.ComplianceUpload, error)
	ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ComplianceUpload, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, fields map[string]interface{}) error
}

type complianceUploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewComplianceUploadRepo(db *gorm.DB, baseLog *logger.Logger) ComplianceUploadRepo {
	repoLog := baseLog.With("repo", "ComplianceUploadRepo")
	return &complianceUploadRepo{db: db, log: repoLog}
}

func (r *complianceUploadRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ComplianceUpload) (*types.ComplianceUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, fmt.Errorf("nil upload record: %w", errs.ErrInvalidArgument)
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("upload record exists for evidence %s provider %s: %w",
				row.EvidenceID, row.Provider, errs.ErrConflict)
		}
		return nil, err
	}
	return row, nil
}

func (r *complianceUploadRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.ComplianceUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || id == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.ComplianceUpload
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

func (r *complianceUploadRepo) GetByEvidenceAndProvider(ctx context.Context, tx *gorm.DB, tenantID, evidenceID uuid.UUID, provider string) (*types.ComplianceUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || evidenceID == uuid.Nil || provider == "" {
		return nil, errs.ErrNotFound
	}

	var row types.ComplianceUpload
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND evidence_id = ? AND provider = ?", tenantID, evidenceID, provider).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *complianceUploadRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, tenantID, sessionID uuid.UUID) ([]*types.ComplianceUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []*types.ComplianceUpload
	if tenantID == uuid.Nil || sessionID == uuid.Nil {
		return rows, nil
	}

	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPending returns open upload rows across all tenants, oldest first.
// Used at boot to re-arm deliveries orphaned by a crash.
func (r *complianceUploadRepo) ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ComplianceUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []*types.ComplianceUpload
	if err := transaction.WithContext(ctx).
		Where("status = ?", types.UploadStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateFields mutates a pending row only. Upload rows move pending to
// succeeded or pending to failed exactly once; a terminal row is never
// rewritten, and an attempted rewrite surfaces as ErrConflict.
func (r *complianceUploadRepo) UpdateFields(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || id == uuid.Nil || len(fields) == 0 {
		return fmt.Errorf("invalid upload update: %w", errs.ErrInvalidArgument)
	}

	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["updated_at"] = time.Now().UTC()

	res := transaction.WithContext(ctx).
		Model(&types.ComplianceUpload{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, types.UploadStatusPending).
		Updates(out)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := transaction.WithContext(ctx).
			Model(&types.ComplianceUpload{}).
			Where("id = ? AND tenant_id = ?", id, tenantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errs.ErrNotFound
		}
		return fmt.Errorf("upload %s is already terminal: %w", id, errs.ErrConflict)
	}
	return nil
}
