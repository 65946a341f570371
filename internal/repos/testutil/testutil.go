package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/attestra/attestra-backend/internal/lifecycle"
	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/types"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			TranslateError:                           true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			dbErr = err
			return
		}

		if err := autoMigrateAll(db); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func SeedTenant(tb testing.TB, ctx context.Context, tx *gorm.DB, slug string) *types.Tenant {
	tb.Helper()
	row := &types.Tenant{
		ID:          uuid.New(),
		Slug:        slug,
		DisplayName: slug,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed tenant: %v", err)
	}
	return row
}

func SeedEmployee(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, email string) *types.Employee {
	tb.Helper()
	row := &types.Employee{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Email:         email,
		FirstName:     "Test",
		LastName:      "Employee",
		PasswordHash:  "x",
		RoleProfileID: "analyst",
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed employee: %v", err)
	}
	return row
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, employeeID uuid.UUID, status string) *types.TrainingSession {
	tb.Helper()
	row := &types.TrainingSession{
		ID:               uuid.New(),
		TenantID:         tenantID,
		EmployeeID:       employeeID,
		RoleProfileID:    "analyst",
		PolicyConfigHash: "deadbeef",
		AppVersion:       "test",
		Status:           status,
		AttemptNumber:    1,
		Version:          1,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if row.Status == "" {
		row.Status = lifecycle.StatusInProgress
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return row
}

func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Tenant{},
		&types.Employee{},
		&types.TrainingSession{},
		&types.TrainingModule{},
		&types.TrainingEvidence{},
		&types.ComplianceUpload{},
		&types.AuditEvent{},
	)
}
