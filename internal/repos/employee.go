package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

type EmployeeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Employee) (*types.Employee, error)
	GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.Employee, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, email string) (*types.Employee, error)
}

type employeeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmployeeRepo(db *gorm.DB, baseLog *logger.Logger) EmployeeRepo {
	repoLog := baseLog.With("repo", "EmployeeRepo")
	return &employeeRepo{db: db, log: repoLog}
}

func (r *employeeRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Employee) (*types.Employee, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, errs.ErrInvalidArgument
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, errs.ErrConflict
		}
		return nil, err
	}
	return row, nil
}

func (r *employeeRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.Employee, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || id == uuid.Nil {
		return nil, errs.ErrNotFound
	}

	var row types.Employee
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

func (r *employeeRepo) GetByEmail(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, email string) (*types.Employee, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if tenantID == uuid.Nil || email == "" {
		return nil, errs.ErrNotFound
	}

	var row types.Employee
	err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}
