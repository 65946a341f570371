package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

type TenantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Tenant) (*types.Tenant, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Tenant, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tenant, error)
}

type tenantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTenantRepo(db *gorm.DB, baseLog *logger.Logger) TenantRepo {
	repoLog := baseLog.With("repo", "TenantRepo")
	return &tenantRepo{db: db, log: repoLog}
}

func (r *tenantRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Tenant) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, errs.ErrInvalidArgument
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *tenantRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.Tenant
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *tenantRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if slug == "" {
		return nil, errs.ErrNotFound
	}

	var row types.Tenant
	err := transaction.WithContext(ctx).
		Where("slug = ?", slug).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}
